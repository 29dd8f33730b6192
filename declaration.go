package ivm

import "strings"

// Declaration is an immutable, frozen-on-Build list of pipeline stages.
// Each method appends a stage and returns a new Declaration — the original
// is unchanged, the same chaining discipline the teacher's Pipeline/Filter
// builders use for Mongo stage documents, reused here to build the actual
// operator chain instead of a wire query (§4.1 "once construction
// finishes, the operator list is frozen; no dynamic rewiring occurs at
// runtime").
//
// Example:
//
//	decl := ivm.NewDeclaration().
//	    Filter(func(r ivm.Record) (bool, error) { v, _ := r.Get("inStock"); return v == true, nil }).
//	    GroupBy([]string{"category"}, "items").
//	    Sum("items", "price", "totalInStock")
//	p := ivm.Build(decl)
type Declaration struct {
	ops       []Operator
	scopeName string // "in(name)" scope selector state: applies to every subsequently appended operator until the next scope change
	arrays    map[string]struct{}
}

// NewDeclaration creates an empty Declaration ready for chaining. The head
// of the eventual operator chain is always root-scoped (§4.1).
func NewDeclaration() Declaration {
	return Declaration{}
}

// IsEmpty reports whether the declaration has no stages.
func (d Declaration) IsEmpty() bool { return len(d.ops) == 0 }

// append returns a new Declaration with op appended, carrying the
// currently-selected scope name.
func (d Declaration) append(op Operator) Declaration {
	switch op.kind {
	case opCount, opSum, opAvg, opMin, opMax:
		// Aggregates are inherently scoped to the group they belong to
		// (§4.4): the explicit childArrayName argument *is* the scope,
		// no separate In() call is needed.
		op.scopeName = op.childArrayName
	default:
		op.scopeName = d.scopeName
	}
	newOps := make([]Operator, len(d.ops), len(d.ops)+1)
	copy(newOps, d.ops)
	newOps = append(newOps, op)

	newArrays := d.arrays
	if op.kind == opGroupBy {
		newArrays = make(map[string]struct{}, len(d.arrays)+1)
		for k := range d.arrays {
			newArrays[k] = struct{}{}
		}
		newArrays[op.childArrayName] = struct{}{}
	}
	return Declaration{ops: newOps, scopeName: d.scopeName, arrays: newArrays}
}

// validateName panics — a programming error per §6.1's precondition and
// §7's "reserved characters in names" — if name contains ':', the
// character reserved for internal scope-key composition.
func validateName(name string) {
	if strings.Contains(name, ":") {
		panic(newProgrammingError("name %q contains reserved character ':'", name))
	}
}

// DefineProperty computes a derived scalar from the incoming record and
// adds it under name (§4.3 defineProperty). fn must be deterministic; use
// DefineCachedProperty if fn is expensive and memoizing per identity is
// acceptable.
func (d Declaration) DefineProperty(name string, fn PropertyFunc) Declaration {
	validateName(name)
	return d.append(Operator{kind: opDefineProperty, propName: name, propFn: fn})
}

// DefineCachedProperty is DefineProperty, but the engine memoizes the last
// computed (name, value) pair per identity so Retract can reproduce the
// augmented record without recomputing fn (§4.3's "implementations may
// cache per-id if fn is expensive").
func (d Declaration) DefineCachedProperty(name string, fn PropertyFunc) Declaration {
	validateName(name)
	return d.append(Operator{kind: opDefineProperty, propName: name, propFn: fn, cache: true})
}

// DropProperty projects away a field (§4.3 dropProperty).
func (d Declaration) DropProperty(name string) Declaration {
	return d.append(Operator{kind: opDropProperty, propName: name})
}

// Filter includes records satisfying predicate, dropping the rest
// (§4.3 filter). predicate must be pure and must return the same verdict
// for the same record on Insert and on the matching Retract.
func (d Declaration) Filter(predicate PredicateFunc) Declaration {
	return d.append(Operator{kind: opFilter, predicate: predicate})
}

// GroupBy partitions the current scope's input into groups keyed by
// keyFields, collecting the remaining fields of each member into
// childArrayName (§4.3 groupBy). Chaining a second GroupBy directly after
// a first (without an intervening In) groups the first stage's group
// nodes themselves, building a nested output (§4.3's "nested group nodes
// when chained").
func (d Declaration) GroupBy(keyFields []string, childArrayName string) Declaration {
	validateName(childArrayName)
	kf := make([]string, len(keyFields))
	copy(kf, keyFields)
	return d.append(Operator{kind: opGroupBy, keyFields: kf, childArrayName: childArrayName})
}

// In selects childArrayName as the scope for every operator appended until
// the next scope change (In or Root). childArrayName must already have
// been declared by a preceding GroupBy in this Declaration — referencing
// an undeclared child array is a programming error (§7).
func (d Declaration) In(childArrayName string) Declaration {
	if _, ok := d.arrays[childArrayName]; !ok {
		panic(newProgrammingError("scope selector names undeclared child array %q", childArrayName))
	}
	return Declaration{ops: d.ops, scopeName: childArrayName, arrays: d.arrays}
}

// Root resets the scope selector back to the top level.
func (d Declaration) Root() Declaration {
	return Declaration{ops: d.ops, scopeName: "", arrays: d.arrays}
}

// Count maintains group[outputField] = len(group[childArrayName])
// (§4.3 count).
func (d Declaration) Count(childArrayName, outputField string) Declaration {
	validateName(outputField)
	return d.append(Operator{kind: opCount, childArrayName: childArrayName, aggOutput: outputField})
}

// Sum maintains a running sum of member[fieldName] over childArrayName's
// members (§4.3 sum).
func (d Declaration) Sum(childArrayName, fieldName, outputField string) Declaration {
	validateName(outputField)
	return d.append(Operator{kind: opSum, childArrayName: childArrayName, aggField: fieldName, aggOutput: outputField})
}

// Avg maintains the running average of member[fieldName] over
// childArrayName's members (§4.3's "min/max/avg follow the same pattern").
func (d Declaration) Avg(childArrayName, fieldName, outputField string) Declaration {
	validateName(outputField)
	return d.append(Operator{kind: opAvg, childArrayName: childArrayName, aggField: fieldName, aggOutput: outputField})
}

// Min maintains the running minimum of member[fieldName], retracting
// correctly via an internal contributing-value multiset (§4.3).
func (d Declaration) Min(childArrayName, fieldName, outputField string) Declaration {
	validateName(outputField)
	return d.append(Operator{kind: opMin, childArrayName: childArrayName, aggField: fieldName, aggOutput: outputField})
}

// Max maintains the running maximum of member[fieldName] (§4.3).
func (d Declaration) Max(childArrayName, fieldName, outputField string) Declaration {
	validateName(outputField)
	return d.append(Operator{kind: opMax, childArrayName: childArrayName, aggField: fieldName, aggOutput: outputField})
}
