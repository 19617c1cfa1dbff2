// Package preserve merges partial updates into records without losing
// fields the caller did not mention.
//
// A merge starts from a full copy of the current record and changes only
// the keys present in the update. Unrecognized or store-managed keys are
// dropped with a warning. Required fields that end up missing are restored
// from the current record, or synthesized from the field policy default
// when the current record lacks them too; such repairs are logged as
// data-integrity anomalies.
package preserve

import (
	log "github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

// Result is the outcome of a merge.
type Result struct {
	Record types.Record

	Applied  []string // update keys written to the record
	Retained []string // extension fields kept from the current record
	Dropped  []string // update keys ignored
	Repaired []string // required fields restored after the merge
}

// Merger applies the field preservation policy. It holds no mutable state
// and is safe for concurrent use.
type Merger struct {
	logger *log.Logger
}

// New returns a Merger that reports dropped keys and repairs to logger.
// A nil logger uses the logrus standard logger.
func New(logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Merger{logger: logger}
}

var defaultMerger = New(nil)

// Merge combines current with updates using a Merger that logs to the
// standard logger.
func Merge(current types.Record, updates types.Updates) (types.Record, error) {
	res, err := defaultMerger.Merge(current, updates)
	return res.Record, err
}

// Merge returns current with updates applied. On error the returned record
// is an unchanged copy of current and the error is a *types.ValidationError.
func (m *Merger) Merge(current types.Record, updates types.Updates) (Result, error) {
	merged := current.Clone()
	res := Result{}
	nulled := make(map[string]bool)

	for _, key := range updates.Keys() {
		p, ok := types.Policy(key)
		if !ok || !p.Writable {
			m.logger.WithFields(log.Fields{"record": current.ID, "field": key}).
				Warn("dropping update for unrecognized or read-only field")
			res.Dropped = append(res.Dropped, key)
			continue
		}

		v := updates[key]
		if v == nil && p.Required {
			nulled[key] = true
			continue
		}
		v, err := checkSpecial(key, v)
		if err != nil {
			return Result{Record: current.Clone()}, err
		}
		if err := merged.SetField(key, v); err != nil {
			return Result{Record: current.Clone()}, err
		}
		res.Applied = append(res.Applied, key)
	}

	for _, name := range types.ExtensionFields() {
		if _, ok := updates[name]; ok {
			continue
		}
		if v, _ := current.Field(name); v != nil {
			res.Retained = append(res.Retained, name)
		}
	}

	for _, name := range types.RequiredFields() {
		if !nulled[name] && !merged.Missing(name) {
			continue
		}
		source := "current"
		v, _ := current.Field(name)
		if current.Missing(name) {
			p, _ := types.Policy(name)
			v = p.Default()
			source = "default"
		}
		// SetField cannot fail here: v comes from the record or its policy.
		_ = merged.SetField(name, v)
		res.Repaired = append(res.Repaired, name)
		m.logger.WithFields(log.Fields{
			"anomaly": "data_integrity",
			"record":  current.ID,
			"field":   name,
			"source":  source,
		}).Warn("repaired required field after merge")
	}

	res.Record = merged
	return res, nil
}

// checkSpecial validates fields with content rules beyond their kind and
// returns the value to store.
func checkSpecial(key string, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	switch key {
	case types.FieldText:
		return types.NormalizeText(s)
	case types.FieldDueDate:
		if err := types.ValidateDueDate(s); err != nil {
			return nil, err
		}
	}
	return v, nil
}
