package types

import "slices"

// Record is a single task item. Core fields are always present; extension
// fields are nil when unset.
type Record struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	Position  int    `json:"position" yaml:"position"`

	DueDate    *string  `json:"due_date" yaml:"due_date"`
	Priority   *string  `json:"priority,omitempty" yaml:"priority,omitempty"`
	Category   *string  `json:"category,omitempty" yaml:"category,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Color      *string  `json:"color,omitempty" yaml:"color,omitempty"`
	Notes      *string  `json:"notes,omitempty" yaml:"notes,omitempty"`
	ModifiedAt *string  `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// Clone returns a deep copy of the record. Pointer fields and the tag slice
// are duplicated so the copy shares no memory with r.
func (r Record) Clone() Record {
	c := r
	c.DueDate = cloneString(r.DueDate)
	c.Priority = cloneString(r.Priority)
	c.Category = cloneString(r.Category)
	c.Color = cloneString(r.Color)
	c.Notes = cloneString(r.Notes)
	c.ModifiedAt = cloneString(r.ModifiedAt)
	if r.Tags != nil {
		c.Tags = slices.Clone(r.Tags)
	}
	return c
}

// HasTag reports whether the record carries tag.
func (r Record) HasTag(tag string) bool {
	return slices.Contains(r.Tags, tag)
}

// CloneRecords deep-copies every record in rs.
func CloneRecords(rs []Record) []Record {
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// Extensions carries the optional fields accepted by Create.
type Extensions struct {
	DueDate  *string
	Priority *string
	Category *string
	Tags     []string
	Color    *string
	Notes    *string
}

// Updates converts the set fields of e into a partial update.
func (e Extensions) Updates() Updates {
	u := Updates{}
	if e.DueDate != nil {
		u[FieldDueDate] = *e.DueDate
	}
	if e.Priority != nil {
		u[FieldPriority] = *e.Priority
	}
	if e.Category != nil {
		u[FieldCategory] = *e.Category
	}
	if e.Tags != nil {
		u[FieldTags] = slices.Clone(e.Tags)
	}
	if e.Color != nil {
		u[FieldColor] = *e.Color
	}
	if e.Notes != nil {
		u[FieldNotes] = *e.Notes
	}
	return u
}

// Stats summarizes completion counts.
type Stats struct {
	Total     int `json:"total" yaml:"total"`
	Completed int `json:"completed" yaml:"completed"`
	Pending   int `json:"pending" yaml:"pending"`
}

// Filter selects records for Read. Nil and empty fields match everything.
type Filter struct {
	Completed *bool
	Category  *string
	Priority  *string
	Tag       string
}

// Match reports whether r satisfies every set field of f.
func (f Filter) Match(r Record) bool {
	if f.Completed != nil && r.Completed != *f.Completed {
		return false
	}
	if f.Category != nil && (r.Category == nil || *r.Category != *f.Category) {
		return false
	}
	if f.Priority != nil && (r.Priority == nil || *r.Priority != *f.Priority) {
		return false
	}
	if f.Tag != "" && !r.HasTag(f.Tag) {
		return false
	}
	return true
}

// ImportMode selects how Import combines incoming records with the store.
type ImportMode string

// Import modes.
const (
	ImportMerge   ImportMode = "merge"
	ImportReplace ImportMode = "replace"
)

// ParseImportMode validates a mode name. An empty name selects ImportMerge.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(s) {
	case "", ImportMerge:
		return ImportMerge, nil
	case ImportReplace:
		return ImportReplace, nil
	}
	return "", &ValidationError{Field: "mode", Reason: "must be merge or replace"}
}

// String returns a pointer to s; a convenience for building Extensions.
func String(s string) *string {
	return &s
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
