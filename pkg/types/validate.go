package types

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// MaxTextLength is the maximum length of a record's text, in characters.
const MaxTextLength = 500

// minDueDateLength is the shortest accepted due date ("20251231").
const minDueDateLength = 8

// NormalizeText trims s, converts it to NFC, and checks the length limits.
// Returns a *ValidationError if the result is empty or too long.
func NormalizeText(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", &ValidationError{Field: FieldText, Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(s); n > MaxTextLength {
		return "", &ValidationError{Field: FieldText, Value: n, Reason: "exceeds 500 characters"}
	}
	return s, nil
}

// ValidateDueDate checks that s starts with an ISO-8601 calendar date, in
// extended (2025-12-31) or basic (20251231) form.
func ValidateDueDate(s string) error {
	if len(s) >= minDueDateLength {
		if len(s) >= 10 {
			if _, err := time.Parse(time.DateOnly, s[:10]); err == nil {
				return nil
			}
		}
		if _, err := time.Parse("20060102", s[:minDueDateLength]); err == nil {
			return nil
		}
	}
	return &ValidationError{Field: FieldDueDate, Value: s, Reason: "not an ISO-8601 date"}
}

// Normalize validates r for storage and normalizes its text in place.
// Returns a *ValidationError naming the first offending field.
func (r *Record) Normalize() error {
	if r.ID == "" {
		return &ValidationError{Field: FieldID, Reason: "must not be empty"}
	}
	if r.CreatedAt == "" {
		return &ValidationError{Field: FieldCreatedAt, Reason: "must not be empty"}
	}
	text, err := NormalizeText(r.Text)
	if err != nil {
		return err
	}
	r.Text = text
	if r.DueDate != nil {
		if err := ValidateDueDate(*r.DueDate); err != nil {
			return err
		}
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	return nil
}

// Now returns the current local time as an RFC 3339 timestamp.
func Now() string {
	return time.Now().Format(time.RFC3339)
}

// NewID generates a record identifier. It prefers UUID v7 so identifiers
// sort by creation time.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
