package ivm

// opKind tags which operator variant an Operator value is. The propagation
// layer switches on this tag rather than dispatching through an interface
// method set — an exhaustive tagged variant instead of a class hierarchy,
// per §9 Design Notes ("avoids virtual dispatch overhead on the hot path
// and makes the event protocol exhaustive").
type opKind int

const (
	opDefineProperty opKind = iota
	opDropProperty
	opFilter
	opGroupBy
	opCount
	opSum
	opAvg
	opMin
	opMax
)

// PredicateFunc is the signature filter expects: a pure, deterministic
// function over a Record (§4.3 "Predicate must be pure").
type PredicateFunc func(Record) (bool, error)

// PropertyFunc is the signature defineProperty expects: a pure,
// deterministic derivation of one scalar from a Record (§4.3 "fn must be
// deterministic").
type PropertyFunc func(Record) (Value, error)

// Operator is one frozen stage of a Declaration, in the tagged-variant
// shape Design Notes §9 calls for. Only the fields relevant to op.kind are
// populated; the rest are zero.
type Operator struct {
	kind      opKind
	scopeName string // "" = root; otherwise the innermost child-array name this operator applies inside

	// defineProperty / dropProperty
	propName string
	propFn   PropertyFunc
	cache    bool

	// filter
	predicate PredicateFunc

	// groupBy
	keyFields      []string
	childArrayName string

	// count / sum / avg / min / max
	aggField  string // source field for sum/avg/min/max; unused for count
	aggOutput string
}
