package types

// Recognized field names, as they appear in the durable file and in Updates.
const (
	FieldID         = "id"
	FieldText       = "text"
	FieldCompleted  = "completed"
	FieldCreatedAt  = "created_at"
	FieldPosition   = "position"
	FieldDueDate    = "due_date"
	FieldPriority   = "priority"
	FieldCategory   = "category"
	FieldTags       = "tags"
	FieldColor      = "color"
	FieldNotes      = "notes"
	FieldModifiedAt = "modified_at"
)

// Tier ranks how strongly a field is protected during merges. Lower values
// rank higher.
type Tier int

// Preservation tiers.
const (
	TierIdentity Tier = iota + 1 // id, text, completed, created_at
	TierUser                     // caller-set metadata
	TierDerived                  // maintained by the store
)

func (t Tier) String() string {
	switch t {
	case TierIdentity:
		return "identity"
	case TierUser:
		return "user"
	case TierDerived:
		return "derived"
	}
	return "unknown"
}

// Kind is the value type a field accepts.
type Kind int

// Field kinds.
const (
	KindString Kind = iota
	KindBool
	KindInt
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindStringList:
		return "string list"
	}
	return "unknown"
}

// FieldPolicy describes one recognized field.
type FieldPolicy struct {
	Name     string
	Tier     Tier
	Kind     Kind
	Required bool // never absent in a persisted record
	Writable bool // may be set through Update
	// Default synthesizes a value when a required field must be repaired.
	// Nil for fields whose default is unset.
	Default func() any
}

// Extension reports whether the field is an optional extension field.
func (p FieldPolicy) Extension() bool {
	return !p.Required && p.Name != FieldPosition
}

// DefaultText is substituted when a record's text has to be synthesized.
const DefaultText = "Untitled task"

var fieldPolicies = []FieldPolicy{
	{Name: FieldID, Tier: TierIdentity, Kind: KindString, Required: true, Default: func() any { return NewID() }},
	{Name: FieldText, Tier: TierIdentity, Kind: KindString, Required: true, Writable: true, Default: func() any { return DefaultText }},
	{Name: FieldCompleted, Tier: TierIdentity, Kind: KindBool, Required: true, Writable: true, Default: func() any { return false }},
	{Name: FieldCreatedAt, Tier: TierIdentity, Kind: KindString, Required: true, Default: func() any { return Now() }},
	{Name: FieldPosition, Tier: TierDerived, Kind: KindInt},
	{Name: FieldDueDate, Tier: TierUser, Kind: KindString, Writable: true},
	{Name: FieldPriority, Tier: TierUser, Kind: KindString, Writable: true},
	{Name: FieldCategory, Tier: TierUser, Kind: KindString, Writable: true},
	{Name: FieldTags, Tier: TierUser, Kind: KindStringList, Writable: true},
	{Name: FieldColor, Tier: TierUser, Kind: KindString, Writable: true},
	{Name: FieldNotes, Tier: TierUser, Kind: KindString, Writable: true},
	{Name: FieldModifiedAt, Tier: TierDerived, Kind: KindString, Default: func() any { return Now() }},
}

var policyByName = func() map[string]FieldPolicy {
	m := make(map[string]FieldPolicy, len(fieldPolicies))
	for _, p := range fieldPolicies {
		m[p.Name] = p
	}
	return m
}()

// Policy returns the policy for a field name.
func Policy(name string) (FieldPolicy, bool) {
	p, ok := policyByName[name]
	return p, ok
}

// FieldPolicies returns the policy table in declaration order.
func FieldPolicies() []FieldPolicy {
	out := make([]FieldPolicy, len(fieldPolicies))
	copy(out, fieldPolicies)
	return out
}

// RequiredFields lists the fields a persisted record must always carry.
func RequiredFields() []string {
	var out []string
	for _, p := range fieldPolicies {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// ExtensionFields lists the optional extension fields.
func ExtensionFields() []string {
	var out []string
	for _, p := range fieldPolicies {
		if p.Extension() {
			out = append(out, p.Name)
		}
	}
	return out
}
