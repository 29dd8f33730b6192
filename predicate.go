package ivm

import (
	"fmt"
	"regexp"
)

// Predicate is an immutable, composable record test. Use method chaining to
// build up conditions on the same field (implicitly ANDed, the same
// discipline gmqb.Filter used for wire queries) — here each condition
// evaluates directly against a live Record instead of compiling to a
// MongoDB query document, since filter stages run in-process against
// values the engine already holds (§4.3 filter).
//
// Example:
//
//	p := ivm.NewPredicate().
//	    Gte("age", 18.0).
//	    Exists("email", true)
//	decl := decl.Filter(p.Eval)
type Predicate struct {
	eval func(Record) (bool, error)
}

// NewPredicate creates a predicate that matches every record, ready for
// chaining.
func NewPredicate() Predicate {
	return Predicate{eval: func(Record) (bool, error) { return true, nil }}
}

// Eval reports whether r satisfies the predicate. It has the PredicateFunc
// shape so it can be passed directly to Declaration.Filter.
func (p Predicate) Eval(r Record) (bool, error) {
	if p.eval == nil {
		return true, nil
	}
	return p.eval(r)
}

func (p Predicate) and(next func(Record) (bool, error)) Predicate {
	prev := p.eval
	return Predicate{eval: func(r Record) (bool, error) {
		ok, err := prev(r)
		if err != nil || !ok {
			return ok, err
		}
		return next(r)
	}}
}

// --- Comparison ---

// Eq creates a predicate matching records whose field equals value.
func Eq(field string, value Value) Predicate {
	return NewPredicate().Eq(field, value)
}

// Eq chains an equality condition onto the predicate.
func (p Predicate) Eq(field string, value Value) Predicate {
	return p.and(func(r Record) (bool, error) {
		v, ok := r.Get(field)
		return ok && valuesEqual(v, value), nil
	})
}

// Ne creates a predicate matching records whose field is not equal to value.
func Ne(field string, value Value) Predicate {
	return NewPredicate().Ne(field, value)
}

// Ne chains an inequality condition onto the predicate.
func (p Predicate) Ne(field string, value Value) Predicate {
	return p.and(func(r Record) (bool, error) {
		v, ok := r.Get(field)
		return !ok || !valuesEqual(v, value), nil
	})
}

func compareNumeric(r Record, field string, cmp func(a, b float64) bool, operand float64) (bool, error) {
	v, ok := r.Get(field)
	if !ok {
		return false, nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return false, fmt.Errorf("predicate: field %q is not numeric (got %T)", field, v)
	}
	return cmp(f, operand), nil
}

// Gt creates a predicate matching records whose numeric field is greater
// than value.
func Gt(field string, value float64) Predicate { return NewPredicate().Gt(field, value) }

func (p Predicate) Gt(field string, value float64) Predicate {
	return p.and(func(r Record) (bool, error) {
		return compareNumeric(r, field, func(a, b float64) bool { return a > b }, value)
	})
}

// Gte creates a predicate matching records whose numeric field is greater
// than or equal to value.
func Gte(field string, value float64) Predicate { return NewPredicate().Gte(field, value) }

func (p Predicate) Gte(field string, value float64) Predicate {
	return p.and(func(r Record) (bool, error) {
		return compareNumeric(r, field, func(a, b float64) bool { return a >= b }, value)
	})
}

// Lt creates a predicate matching records whose numeric field is less than
// value.
func Lt(field string, value float64) Predicate { return NewPredicate().Lt(field, value) }

func (p Predicate) Lt(field string, value float64) Predicate {
	return p.and(func(r Record) (bool, error) {
		return compareNumeric(r, field, func(a, b float64) bool { return a < b }, value)
	})
}

// Lte creates a predicate matching records whose numeric field is less than
// or equal to value.
func Lte(field string, value float64) Predicate { return NewPredicate().Lte(field, value) }

func (p Predicate) Lte(field string, value float64) Predicate {
	return p.and(func(r Record) (bool, error) {
		return compareNumeric(r, field, func(a, b float64) bool { return a <= b }, value)
	})
}

// --- Set membership ---

// In creates a predicate matching records whose field equals any of values.
func In(field string, values ...Value) Predicate { return NewPredicate().In(field, values...) }

func (p Predicate) In(field string, values ...Value) Predicate {
	return p.and(func(r Record) (bool, error) {
		v, ok := r.Get(field)
		if !ok {
			return false, nil
		}
		for _, candidate := range values {
			if valuesEqual(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	})
}

// Nin creates a predicate matching records whose field equals none of
// values.
func Nin(field string, values ...Value) Predicate { return NewPredicate().Nin(field, values...) }

func (p Predicate) Nin(field string, values ...Value) Predicate {
	in := NewPredicate().In(field, values...)
	return p.and(func(r Record) (bool, error) {
		ok, err := in.Eval(r)
		return !ok, err
	})
}

// --- Existence, size, modulus ---

// Exists creates a predicate matching records where field's presence equals
// want.
func Exists(field string, want bool) Predicate { return NewPredicate().Exists(field, want) }

func (p Predicate) Exists(field string, want bool) Predicate {
	return p.and(func(r Record) (bool, error) {
		_, ok := r.Get(field)
		return ok == want, nil
	})
}

// Size creates a predicate matching records whose array-valued field has
// exactly n elements.
func Size(field string, n int) Predicate { return NewPredicate().Size(field, n) }

func (p Predicate) Size(field string, n int) Predicate {
	return p.and(func(r Record) (bool, error) {
		v, ok := r.Get(field)
		if !ok {
			return false, nil
		}
		arr, ok := v.([]Value)
		if !ok {
			return false, nil
		}
		return len(arr) == n, nil
	})
}

// Mod creates a predicate matching records whose numeric field, taken
// modulo divisor, equals remainder.
func Mod(field string, divisor, remainder int64) Predicate {
	return NewPredicate().Mod(field, divisor, remainder)
}

func (p Predicate) Mod(field string, divisor, remainder int64) Predicate {
	return p.and(func(r Record) (bool, error) {
		v, ok := r.Get(field)
		if !ok {
			return false, nil
		}
		f, ok := toFloat64(v)
		if !ok {
			return false, fmt.Errorf("predicate: field %q is not numeric (got %T)", field, v)
		}
		return int64(f)%divisor == remainder, nil
	})
}

// All creates a predicate matching records whose array-valued field
// contains every element of values.
func All(field string, values ...Value) Predicate { return NewPredicate().All(field, values...) }

func (p Predicate) All(field string, values ...Value) Predicate {
	return p.and(func(r Record) (bool, error) {
		v, ok := r.Get(field)
		if !ok {
			return false, nil
		}
		arr, ok := v.([]Value)
		if !ok {
			return false, nil
		}
		for _, want := range values {
			found := false
			for _, have := range arr {
				if valuesEqual(have, want) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	})
}

// Regex creates a predicate matching records whose string-valued field
// matches the regular expression pattern.
func Regex(field, pattern string) Predicate { return NewPredicate().Regex(field, pattern) }

func (p Predicate) Regex(field, pattern string) Predicate {
	re, compileErr := regexp.Compile(pattern)
	return p.and(func(r Record) (bool, error) {
		if compileErr != nil {
			return false, fmt.Errorf("predicate: invalid regex %q: %w", pattern, compileErr)
		}
		v, ok := r.Get(field)
		if !ok {
			return false, nil
		}
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		return re.MatchString(s), nil
	})
}

// --- Logical combinators ---

// And creates a predicate matching records satisfying every one of
// predicates.
func And(predicates ...Predicate) Predicate {
	return Predicate{eval: func(r Record) (bool, error) {
		for _, pr := range predicates {
			ok, err := pr.Eval(r)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	}}
}

// Or creates a predicate matching records satisfying at least one of
// predicates.
func Or(predicates ...Predicate) Predicate {
	return Predicate{eval: func(r Record) (bool, error) {
		for _, pr := range predicates {
			ok, err := pr.Eval(r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}}
}

// Nor creates a predicate matching records satisfying none of predicates.
func Nor(predicates ...Predicate) Predicate {
	or := Or(predicates...)
	return Predicate{eval: func(r Record) (bool, error) {
		ok, err := or.Eval(r)
		return !ok, err
	}}
}

// Not creates a predicate that inverts inner.
func Not(inner Predicate) Predicate {
	return Predicate{eval: func(r Record) (bool, error) {
		ok, err := inner.Eval(r)
		return !ok, err
	}}
}
