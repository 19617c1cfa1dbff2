package types

import (
	"fmt"
	"math"
	"slices"
)

// Updates is a partial update keyed by field name. A key that is present
// changes the field; a nil value clears a nullable field. Keys that are not
// present leave the field untouched.
type Updates map[string]any

// Keys returns the update keys in policy order followed by unknown keys in
// sorted order.
func (u Updates) Keys() []string {
	var known, unknown []string
	for _, p := range fieldPolicies {
		if _, ok := u[p.Name]; ok {
			known = append(known, p.Name)
		}
	}
	for k := range u {
		if _, ok := policyByName[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)
	return append(known, unknown...)
}

// Field returns the value of a recognized field. Unset nullable fields
// return nil. The second result is false for unknown names.
func (r Record) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return r.ID, true
	case FieldText:
		return r.Text, true
	case FieldCompleted:
		return r.Completed, true
	case FieldCreatedAt:
		return r.CreatedAt, true
	case FieldPosition:
		return r.Position, true
	case FieldTags:
		if r.Tags == nil {
			return nil, true
		}
		return slices.Clone(r.Tags), true
	}
	if slot := r.nullable(name); slot != nil {
		if *slot == nil {
			return nil, true
		}
		return **slot, true
	}
	return nil, false
}

// Missing reports whether a required field is absent. Only string fields
// can be absent in a decoded record; completed always has a value.
func (r Record) Missing(name string) bool {
	switch name {
	case FieldID:
		return r.ID == ""
	case FieldText:
		return r.Text == ""
	case FieldCreatedAt:
		return r.CreatedAt == ""
	}
	return false
}

// SetField assigns v to the named field after checking its kind. A nil v
// clears a nullable field. Returns a *ValidationError for unknown fields,
// kind mismatches, and nil on a required field.
func (r *Record) SetField(name string, v any) error {
	p, ok := policyByName[name]
	if !ok {
		return &ValidationError{Field: name, Reason: "unknown field"}
	}
	if v == nil {
		if p.Required || p.Kind == KindInt {
			return &ValidationError{Field: name, Reason: "must not be null"}
		}
		if p.Kind == KindStringList {
			r.Tags = nil
			return nil
		}
		*r.nullable(name) = nil
		return nil
	}

	switch p.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return kindMismatch(p, v)
		}
		switch name {
		case FieldID:
			r.ID = s
		case FieldText:
			r.Text = s
		case FieldCreatedAt:
			r.CreatedAt = s
		default:
			*r.nullable(name) = &s
		}
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return kindMismatch(p, v)
		}
		r.Completed = b
	case KindInt:
		n, ok := toInt(v)
		if !ok {
			return kindMismatch(p, v)
		}
		r.Position = n
	case KindStringList:
		tags, ok := toStrings(v)
		if !ok {
			return kindMismatch(p, v)
		}
		if len(tags) == 0 {
			tags = nil
		}
		r.Tags = tags
	}
	return nil
}

func (r *Record) nullable(name string) **string {
	switch name {
	case FieldDueDate:
		return &r.DueDate
	case FieldPriority:
		return &r.Priority
	case FieldCategory:
		return &r.Category
	case FieldColor:
		return &r.Color
	case FieldNotes:
		return &r.Notes
	case FieldModifiedAt:
		return &r.ModifiedAt
	}
	return nil
}

func kindMismatch(p FieldPolicy, v any) error {
	return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("expected %s, got %T", p.Kind, v)}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// toStrings accepts []string and the []any produced by JSON and YAML decoders.
func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
