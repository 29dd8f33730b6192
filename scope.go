package ivm

// scopeFrame tags an event with the innermost group it currently targets.
// An empty name means "root": the event targets the sink array directly,
// not any group's child array. slot is the concrete GroupNode arena slot
// that frame was created for — it is what per-(operator, scope) aggregate
// state is keyed on (§9 Design Notes: "operator state keyed by
// (operator-index, scope-slot-index)").
type scopeFrame struct {
	name string
	slot int
}

// scope is the event's full nesting path from root to its current
// location. Only the innermost frame's name is ever compared against an
// operator's declared scope name (§4.4: "a scoped operator inspects the
// tag and forwards unchanged if the tag does not match" — matching is on
// the innermost frame, since a childArrayName uniquely names one nesting
// level regardless of how deep it sits).
type scope []scopeFrame

var rootScope = scope(nil)

func (s scope) name() string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1].name
}

func (s scope) slot() int {
	if len(s) == 0 {
		return -1
	}
	return s[len(s)-1].slot
}

func (s scope) push(name string, slot int) scope {
	out := make(scope, len(s), len(s)+1)
	copy(out, s)
	return append(out, scopeFrame{name: name, slot: slot})
}

// matches reports whether an operator declared with the given scope name
// (empty = root) should actively process an event carrying this scope.
func (s scope) matches(declaredName string) bool {
	return s.name() == declaredName
}
