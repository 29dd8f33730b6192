package ivm

// GroupNode is the output entity a groupBy stage creates for one key-tuple
// equivalence class: the key fields flattened as top-level properties, an
// ordered child array, and the stable slot identity the propagation layer
// uses to address per-group aggregate state (§3 "Group node", Design Notes
// §9 "arena-allocated tree of group slots with stable integer indices").
//
// A GroupNode exists iff its ChildArray is non-empty (§3 invariant 2); the
// engine is responsible for destroying it — never the caller.
type GroupNode struct {
	// Fields holds the key fields for this group, in the order the
	// groupBy operator's keyFields list declared them, followed by any
	// output fields that count/sum/avg/min/max stages write back.
	Fields Record

	// ChildArray is the named child collection: elements are either
	// Records (leaf members) or *GroupNode (when a further groupBy
	// chains directly on top, §4.3 "nested group nodes when chained").
	ChildArrayName string
	ChildArray     []Value

	// slot is this instance's unique arena slot, assigned once at
	// creation and never reused even if a group with the same key is
	// later recreated (§3 invariant 3: a retract-then-reinsert of a
	// member key re-appends, which means fresh aggregate state too).
	slot int

	// memberIndex is the insertion-order position of each live member, keyed
	// by its identity, so Retract can splice it back out of ChildArray
	// without a linear key-equality scan when the member is itself a
	// GroupNode (which has no stable identity of its own).
	memberIndex map[string]int
}

func newGroupNode(keyFields Record, childArrayName string, slot int) *GroupNode {
	return &GroupNode{
		Fields:         keyFields,
		ChildArrayName: childArrayName,
		ChildArray:     nil,
		slot:           slot,
		memberIndex:    make(map[string]int),
	}
}

func (g *GroupNode) append(id string, v Value) {
	g.memberIndex[id] = len(g.ChildArray)
	g.ChildArray = append(g.ChildArray, v)
}

// remove splices out the member with the given identity, preserving the
// relative order of the remaining members, and reports whether it was
// found.
func (g *GroupNode) remove(id string) bool {
	idx, ok := g.memberIndex[id]
	if !ok {
		return false
	}
	g.ChildArray = append(g.ChildArray[:idx], g.ChildArray[idx+1:]...)
	delete(g.memberIndex, id)
	for k, i := range g.memberIndex {
		if i > idx {
			g.memberIndex[k] = i - 1
		}
	}
	return true
}

// clone deep-copies the node for snapshot output (§5 sharing policy:
// Output() returns an owned clone, never a borrowed reference into engine
// state).
func (g *GroupNode) clone() *GroupNode {
	out := &GroupNode{
		Fields:         g.Fields.Clone(),
		ChildArrayName: g.ChildArrayName,
		slot:           g.slot,
	}
	out.ChildArray = make([]Value, len(g.ChildArray))
	for i, v := range g.ChildArray {
		out.ChildArray[i] = cloneMember(v)
	}
	return out
}

func cloneMember(v Value) Value {
	switch x := v.(type) {
	case Record:
		return x.Clone()
	case *GroupNode:
		return x.clone()
	default:
		return cloneValue(v)
	}
}
