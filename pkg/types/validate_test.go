package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "Buy milk", want: "Buy milk"},
		{name: "trims whitespace", in: "  Buy milk\n", want: "Buy milk"},
		{name: "composes to NFC", in: "cafe\u0301", want: "caf\u00e9"},
		{name: "empty", in: "", wantErr: true},
		{name: "whitespace only", in: " \t ", wantErr: true},
		{name: "exactly 500", in: strings.Repeat("a", 500), want: strings.Repeat("a", 500)},
		{name: "501 rejected", in: strings.Repeat("a", 501), wantErr: true},
		{name: "500 multibyte runes", in: strings.Repeat("é", 500), want: strings.Repeat("é", 500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeText(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateDueDate(t *testing.T) {
	valid := []string{"2025-12-31", "20251231", "2025-12-31T10:00:00", "2025-12-31 09:00"}
	for _, s := range valid {
		assert.NoError(t, ValidateDueDate(s), s)
	}
	invalid := []string{"", "bad", "2025-1-1", "2025-13-01", "tomorrow!", "31/12/2025"}
	for _, s := range invalid {
		assert.ErrorIs(t, ValidateDueDate(s), ErrValidation, s)
	}
}

func TestRecordNormalize(t *testing.T) {
	r := sampleRecord()
	r.Text = "  spaced  "
	r.Tags = []string{}
	require.NoError(t, r.Normalize())
	assert.Equal(t, "spaced", r.Text)
	assert.Nil(t, r.Tags)

	missingID := sampleRecord()
	missingID.ID = ""
	assert.ErrorIs(t, missingID.Normalize(), ErrValidation)

	badDue := sampleRecord()
	badDue.DueDate = String("soon")
	assert.ErrorIs(t, badDue.Normalize(), ErrValidation)
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
