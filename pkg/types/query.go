package types

// SortMode orders query results.
type SortMode string

// Sort modes.
const (
	SortManual      SortMode = "manual"
	SortDueAsc      SortMode = "due_asc"
	SortDueDesc     SortMode = "due_desc"
	SortCreatedAsc  SortMode = "created_asc"
	SortCreatedDesc SortMode = "created_desc"
)

var validSortModes = map[SortMode]bool{
	SortManual:      true,
	SortDueAsc:      true,
	SortDueDesc:     true,
	SortCreatedAsc:  true,
	SortCreatedDesc: true,
}

// ParseSortMode validates a sort mode name. An empty name selects SortManual.
func ParseSortMode(s string) (SortMode, error) {
	if s == "" {
		return SortManual, nil
	}
	m := SortMode(s)
	if !validSortModes[m] {
		return "", &ValidationError{Field: "sort", Value: s, Reason: "unknown sort mode"}
	}
	return m, nil
}

// Query is a filtered, sorted listing request.
type Query struct {
	Filter

	// Text matches records whose text contains it, case-insensitively.
	Text string
	// DueBefore and DueAfter bound due_date (inclusive). Records without a
	// due date never match a bound.
	DueBefore string
	DueAfter  string

	Sort  SortMode
	Limit int // zero means no limit
}
