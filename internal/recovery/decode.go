package recovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// LegacyCreatedAt is assigned to records written before creation times were
// tracked.
const LegacyCreatedAt = "2024-01-01T00:00:00"

// ErrNotRecordList is returned for data that is not a JSON array of objects.
var ErrNotRecordList = errors.New("not a record list")

// wireRecord mirrors types.Record with pointers so absent fields can be told
// apart from zero values. Unknown fields are ignored.
type wireRecord struct {
	ID         *string  `json:"id"`
	Text       *string  `json:"text"`
	Completed  *bool    `json:"completed"`
	CreatedAt  *string  `json:"created_at"`
	Position   *int     `json:"position"`
	DueDate    *string  `json:"due_date"`
	Priority   *string  `json:"priority"`
	Category   *string  `json:"category"`
	Tags       []string `json:"tags"`
	Color      *string  `json:"color"`
	Notes      *string  `json:"notes"`
	ModifiedAt *string  `json:"modified_at"`
}

// Entry is one decoded record with the required fields it lacked.
type Entry struct {
	Index   int
	Record  types.Record
	Missing []string
}

// Decode parses a data file image. Records missing a position take their
// array index. Records missing required fields are returned with Missing
// set; their other fields are kept. Returns ErrNotRecordList, or a decode
// error, when data is not a well-formed record list.
func Decode(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotRecordList
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decoding record list: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("record %d: %w", i, ErrNotRecordList)
		}
		var w wireRecord
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, fmt.Errorf("decoding record %d: %w", i, err)
		}
		entries = append(entries, w.entry(i))
	}
	return entries, nil
}

func (w wireRecord) entry(index int) Entry {
	e := Entry{Index: index}
	r := types.Record{
		Position:   index,
		DueDate:    w.DueDate,
		Priority:   w.Priority,
		Category:   w.Category,
		Tags:       w.Tags,
		Color:      w.Color,
		Notes:      w.Notes,
		ModifiedAt: w.ModifiedAt,
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	if w.Position != nil {
		r.Position = *w.Position
	}

	if w.ID != nil && *w.ID != "" {
		r.ID = *w.ID
	} else {
		e.Missing = append(e.Missing, types.FieldID)
	}
	if w.Text != nil && *w.Text != "" {
		r.Text = *w.Text
	} else {
		e.Missing = append(e.Missing, types.FieldText)
	}
	if w.Completed != nil {
		r.Completed = *w.Completed
	} else {
		e.Missing = append(e.Missing, types.FieldCompleted)
	}
	if w.CreatedAt != nil && *w.CreatedAt != "" {
		r.CreatedAt = *w.CreatedAt
	} else {
		e.Missing = append(e.Missing, types.FieldCreatedAt)
	}

	e.Record = r
	return e
}

// ParseFile reads a data or backup file and returns its records sorted and
// densely re-indexed. Incomplete records get the legacy creation time when
// that is all they lack and are dropped otherwise.
func ParseFile(path string, logger *log.Logger) ([]types.Record, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	entries, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	records, _, _ := resolve(entries, nil, logger)
	return records, nil
}
