package ivm

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Value is anything a field of a Record may hold: a scalar (number, string,
// bool, nil), a nested Record, a nested array ([]interface{} whose elements
// are themselves Values), or a *GroupNode when the value sits inside a
// parent group's child array after a groupBy stage.
type Value = interface{}

// Record is an unordered mapping from field name to Value, represented as
// an ordered field list so that insertion order survives projection and
// JSON serialization reads naturally — the same representation gmqb.Filter
// and gmqb.Pipeline built their stage documents on, reused here for the
// engine's own data instead of a wire query.
type Record bson.D

// Get returns the value stored under name and whether it was present.
func (r Record) Get(name string) (Value, bool) {
	for _, e := range r {
		if e.Key == name {
			return e.Value, true
		}
	}
	return nil, false
}

// With returns a new Record with name set to value, replacing any existing
// entry for name in place or appending it at the end. The receiver is left
// unchanged.
func (r Record) With(name string, value Value) Record {
	out := make(Record, len(r))
	copy(out, r)
	for i, e := range out {
		if e.Key == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, bson.E{Key: name, Value: value})
}

// Without returns a new Record with the named fields removed, preserving
// the relative order of the remaining fields. The receiver is unchanged.
func (r Record) Without(names ...string) Record {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := make(Record, 0, len(r))
	for _, e := range r {
		if _, skip := drop[e.Key]; skip {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clone deep-copies the record so that a caller's mutation of the value it
// submitted to Add cannot corrupt engine state (§9 Design Notes: records
// are immutable once submitted, enforced by cloning on insert).
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for i, e := range r {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v Value) Value {
	switch x := v.(type) {
	case Record:
		return x.Clone()
	case bson.D:
		return Record(x).Clone()
	case []Value:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return x
	}
}

// Equal reports whether two records are structurally equal: same field
// names mapping to equal values, independent of field order (per §3
// "Record: an unordered mapping"). Used through valuesEqual by the
// predicate combinators (Eq, Ne, In, Nin, All) and by tests; retraction
// bookkeeping locates members by identity and does not call it.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for _, e := range r {
		ov, ok := other.Get(e.Key)
		if !ok || !valuesEqual(e.Value, ov) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b Value) bool {
	switch x := a.(type) {
	case Record:
		y, ok := toRecord(b)
		return ok && x.Equal(y)
	case bson.D:
		y, ok := toRecord(b)
		return ok && Record(x).Equal(y)
	case []Value:
		y, ok := b.([]Value)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func toRecord(v Value) (Record, bool) {
	switch x := v.(type) {
	case Record:
		return x, true
	case bson.D:
		return Record(x), true
	default:
		return nil, false
	}
}
