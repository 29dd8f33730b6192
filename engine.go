package ivm

import "fmt"

// eventKind tags whether an event is adding or removing a contribution
// (§4.2 "two event kinds: Insert(id, record, scope) and Retract(id,
// record, scope)").
type eventKind int

const (
	evInsert eventKind = iota
	evRetract
)

// event is one unit of propagation. value is either a Record (a plain
// member) or a *GroupNode (a group, flowing as a single unit into a
// directly-chained outer groupBy, §4.3's "nested group nodes when
// chained"). sc is the scope path this event currently targets.
type event struct {
	kind  eventKind
	id    string
	value Value
	sc    scope
}

type member struct {
	id    string
	value Value
}

// Pipeline is the frozen, runtime form of a Declaration (§6.1 "build").
// Add and Remove are synchronous and leave the output consistent with a
// batch evaluation of the same chain over the live multiset (§3
// invariant 1).
type Pipeline struct {
	ops []Operator

	groupStates  []*groupByState
	countStates  []*countState
	sumStates    []*sumState
	minMaxStates []*minMaxState
	propCaches   []*propertyCache

	nodeBySlot map[int]*GroupNode
	nextSlot   int

	sink      []member
	sinkIndex map[string]int

	liveIDs map[string]struct{}
}

// Build freezes decl into a runnable Pipeline (§6.1 "build(declaration) ->
// Pipeline").
func Build(decl Declaration) *Pipeline {
	ops := make([]Operator, len(decl.ops))
	copy(ops, decl.ops)

	p := &Pipeline{
		ops:          ops,
		groupStates:  make([]*groupByState, len(ops)),
		countStates:  make([]*countState, len(ops)),
		sumStates:    make([]*sumState, len(ops)),
		minMaxStates: make([]*minMaxState, len(ops)),
		propCaches:   make([]*propertyCache, len(ops)),
		nodeBySlot:   make(map[int]*GroupNode),
		sinkIndex:    make(map[string]int),
		liveIDs:      make(map[string]struct{}),
	}
	for i, op := range ops {
		switch op.kind {
		case opGroupBy:
			p.groupStates[i] = newGroupByState()
		case opCount:
			p.countStates[i] = newCountState()
		case opSum, opAvg:
			p.sumStates[i] = newSumState()
		case opMin, opMax:
			p.minMaxStates[i] = newMinMaxState()
		case opDefineProperty:
			if op.cache {
				p.propCaches[i] = newPropertyCache()
			}
		}
	}
	return p
}

// Add submits a new record under id (§6.1). The record is cloned so a
// caller mutating its original value afterward cannot corrupt engine
// state (§9 Design Notes). The event is validated by a non-mutating dry
// run before the real, mutating pass commits anything, so a failing
// predicate or defineProperty function leaves the pipeline untouched
// (§7's "validate before mutating").
func (p *Pipeline) Add(id string, record Record) error {
	if _, live := p.liveIDs[id]; live {
		return newProgrammingError("add: identity %q is already live", id)
	}
	ev := event{kind: evInsert, id: id, value: record.Clone(), sc: rootScope}
	if err := p.run(false, 0, ev); err != nil {
		return err
	}
	if err := p.run(true, 0, ev); err != nil {
		return err
	}
	p.liveIDs[id] = struct{}{}
	return nil
}

// Remove retracts the record previously submitted under id, which must be
// the same value given to Add (§3 "Identity"). Removing an unknown or
// already-removed identity is a programming error (§7).
func (p *Pipeline) Remove(id string, record Record) error {
	if _, live := p.liveIDs[id]; !live {
		return newUnknownIdentityError(id)
	}
	ev := event{kind: evRetract, id: id, value: record.Clone(), sc: rootScope}
	if err := p.run(false, 0, ev); err != nil {
		return err
	}
	if err := p.run(true, 0, ev); err != nil {
		return err
	}
	delete(p.liveIDs, id)
	return nil
}

// Output returns a deep-cloned snapshot of the sink array (§5 sharing
// policy (a): callers get an owned copy, never a view into live engine
// state, so there is no way to observe — or corrupt — the engine between
// events).
func (p *Pipeline) Output() []Value {
	out := make([]Value, len(p.sink))
	for i, m := range p.sink {
		out[i] = cloneMember(m.value)
	}
	return out
}

// Stats is the debug introspection hook §8/S5 asks for: after retracting
// everything ever inserted, every count here should be zero.
type Stats struct {
	SinkSize     int
	LiveGroups   int
	TrackedSlots int
}

func (p *Pipeline) Stats() Stats {
	groups := 0
	for _, gs := range p.groupStates {
		if gs != nil {
			groups += len(gs.groups)
		}
	}
	return Stats{SinkSize: len(p.sink), LiveGroups: groups, TrackedSlots: len(p.nodeBySlot)}
}

// run threads ev through operators[i:]. mutating selects between the
// validation dry run (no state changes, used to surface caller-data
// errors before anything commits) and the real pass. Processing is
// depth-first: an event an operator emits downstream is fully propagated
// before the operator moves on (§4.2).
func (p *Pipeline) run(mutating bool, i int, ev event) error {
	if i == len(p.ops) {
		if ev.sc.name() == "" {
			p.applyToSink(mutating, ev)
		} else {
			p.applyToGroup(mutating, ev)
		}
		return nil
	}
	op := &p.ops[i]
	if !ev.sc.matches(op.scopeName) {
		return p.run(mutating, i+1, ev)
	}
	switch op.kind {
	case opDefineProperty:
		return p.runDefineProperty(mutating, i, ev)
	case opDropProperty:
		return p.runDropProperty(mutating, i, ev)
	case opFilter:
		return p.runFilter(mutating, i, ev)
	case opGroupBy:
		return p.runGroupBy(mutating, i, ev)
	case opCount:
		return p.runCount(mutating, i, ev)
	case opSum:
		return p.runSum(mutating, i, ev)
	case opAvg:
		return p.runAvg(mutating, i, ev)
	case opMin:
		return p.runMin(mutating, i, ev)
	case opMax:
		return p.runMax(mutating, i, ev)
	default:
		return p.run(mutating, i+1, ev)
	}
}

func (p *Pipeline) applyToSink(mutating bool, ev event) {
	if !mutating {
		return
	}
	switch ev.kind {
	case evInsert:
		p.sinkIndex[ev.id] = len(p.sink)
		p.sink = append(p.sink, member{id: ev.id, value: ev.value})
	case evRetract:
		idx, ok := p.sinkIndex[ev.id]
		if !ok {
			return
		}
		p.sink = append(p.sink[:idx], p.sink[idx+1:]...)
		delete(p.sinkIndex, ev.id)
		for k, v := range p.sinkIndex {
			if v > idx {
				p.sinkIndex[k] = v - 1
			}
		}
	}
}

// applyToGroup is applyToSink's nested counterpart: a member event that
// survives every scoped stage chained after the groupBy that produced it
// (e.g. In(childArrayName).Filter(...)) is committed into its immediate
// parent group's child array here, exactly as a root-level event is
// committed into the sink — never inside runGroupBy itself (§4.4).
func (p *Pipeline) applyToGroup(mutating bool, ev event) {
	if !mutating {
		return
	}
	node := p.nodeBySlot[ev.sc.slot()]
	if node == nil {
		return
	}
	switch ev.kind {
	case evInsert:
		node.append(ev.id, ev.value)
	case evRetract:
		node.remove(ev.id)
	}
}

func (p *Pipeline) runDefineProperty(mutating bool, i int, ev event) error {
	op := &p.ops[i]
	rec, ok := ev.value.(Record)
	if !ok {
		return p.run(mutating, i+1, ev)
	}

	var val Value
	var err error
	usedCache := false
	if op.cache && ev.kind == evRetract && p.propCaches[i] != nil {
		if cached, found := p.propCaches[i].get(ev.id); found {
			val, usedCache = cached, true
		}
	}
	if !usedCache {
		val, err = op.propFn(rec)
		if err != nil {
			return newCallerDataError(err)
		}
	}

	if mutating && op.cache && p.propCaches[i] != nil {
		if ev.kind == evInsert {
			p.propCaches[i].set(ev.id, val)
		} else {
			p.propCaches[i].delete(ev.id)
		}
	}

	next := ev
	next.value = rec.With(op.propName, val)
	return p.run(mutating, i+1, next)
}

func (p *Pipeline) runDropProperty(mutating bool, i int, ev event) error {
	op := &p.ops[i]
	rec, ok := ev.value.(Record)
	if !ok {
		return p.run(mutating, i+1, ev)
	}
	next := ev
	next.value = rec.Without(op.propName)
	return p.run(mutating, i+1, next)
}

func (p *Pipeline) runFilter(mutating bool, i int, ev event) error {
	op := &p.ops[i]
	rec, ok := ev.value.(Record)
	if !ok {
		return p.run(mutating, i+1, ev)
	}
	keep, err := op.predicate(rec)
	if err != nil {
		return newCallerDataError(err)
	}
	if !keep {
		return nil
	}
	return p.run(mutating, i+1, ev)
}

// lifecycleID names the synthetic member a group-created/group-destroyed
// event carries for a key, stable for the group's entire lifetime so an
// outer, directly-chained groupBy can track and later remove it
// (§4.3.1).
func lifecycleID(childArrayName string, key groupKey) string {
	return fmt.Sprintf("%s:%s", childArrayName, string(key))
}

func (p *Pipeline) runGroupBy(mutating bool, i int, ev event) error {
	op := &p.ops[i]
	st := p.groupStates[i]

	var keySource Record
	switch v := ev.value.(type) {
	case Record:
		keySource = v
	case *GroupNode:
		keySource = v.Fields
	default:
		return p.run(mutating, i+1, ev)
	}
	key := makeKey(keySource, op.keyFields)

	switch ev.kind {
	case evInsert:
		node, existed := st.groups[key]
		justCreated := !existed
		if justCreated {
			slot := p.nextSlot
			if mutating {
				p.nextSlot++
			}
			node = newGroupNode(keyFieldsOf(keySource, op.keyFields), op.childArrayName, slot)
			if mutating {
				st.create(key, node)
				p.nodeBySlot[slot] = node
			}
		}

		// Forward the member into its own scope first; whether it
		// actually lands in node's child array is decided at the end of
		// the chain (applyToGroup), the same way a root-level record's
		// fate is decided at the sink — not committed unconditionally
		// here before any scoped filter/defineProperty downstream has had
		// a say (§4.4).
		inner := stripOrPass(ev.value, op.keyFields)
		memberEv := event{kind: evInsert, id: ev.id, value: inner, sc: ev.sc.push(op.childArrayName, node.slot)}
		if err := p.run(mutating, i+1, memberEv); err != nil {
			return err
		}

		if !justCreated {
			return nil
		}
		if mutating && len(node.ChildArray) == 0 {
			// The group's only candidate member was rejected by a scoped
			// stage downstream; never announce a group that starts out
			// empty (§3 invariant 2).
			st.destroy(key)
			delete(p.nodeBySlot, node.slot)
			p.cleanupSlot(node.slot)
			return nil
		}
		created := event{kind: evInsert, id: lifecycleID(op.childArrayName, key), value: node, sc: ev.sc}
		return p.run(mutating, i+1, created)

	case evRetract:
		node, existed := st.groups[key]
		if !existed {
			return newProgrammingError("remove: no group for key in %q", op.childArrayName)
		}
		_, wasMember := node.memberIndex[ev.id]
		willEmpty := wasMember && len(node.ChildArray) == 1

		inner := stripOrPass(ev.value, op.keyFields)
		memberEv := event{kind: evRetract, id: ev.id, value: inner, sc: ev.sc.push(op.childArrayName, node.slot)}
		if err := p.run(mutating, i+1, memberEv); err != nil {
			return err
		}

		if !willEmpty {
			return nil
		}
		if mutating {
			st.destroy(key)
			delete(p.nodeBySlot, node.slot)
			p.cleanupSlot(node.slot)
		}
		destroyed := event{kind: evRetract, id: lifecycleID(op.childArrayName, key), value: node, sc: ev.sc}
		return p.run(mutating, i+1, destroyed)
	}
	return nil
}

func stripOrPass(v Value, keyFields []string) Value {
	switch x := v.(type) {
	case Record:
		return x.Without(keyFields...)
	case *GroupNode:
		return x
	default:
		return v
	}
}

func (p *Pipeline) writeBack(slot int, field string, value Value) {
	node := p.nodeBySlot[slot]
	if node == nil {
		return
	}
	node.Fields = node.Fields.With(field, value)
}

// cleanupSlot drops any aggregate state left over for a destroyed group's
// slot, so S5's "no internal state remains" holds after everything is
// retracted.
func (p *Pipeline) cleanupSlot(slot int) {
	for _, cs := range p.countStates {
		if cs != nil {
			delete(cs.counts, slot)
		}
	}
	for _, ss := range p.sumStates {
		if ss != nil {
			delete(ss.sums, slot)
			delete(ss.counts, slot)
		}
	}
	for _, ms := range p.minMaxStates {
		if ms != nil {
			delete(ms.values, slot)
		}
	}
}

func (p *Pipeline) runCount(mutating bool, i int, ev event) error {
	op := &p.ops[i]
	st := p.countStates[i]
	slot := ev.sc.slot()
	if mutating && slot >= 0 {
		switch ev.kind {
		case evInsert:
			st.counts[slot]++
		case evRetract:
			st.counts[slot]--
		}
		p.writeBack(slot, op.aggOutput, st.counts[slot])
	}
	return p.run(mutating, i+1, ev)
}

func (p *Pipeline) runSum(mutating bool, i int, ev event) error {
	op := &p.ops[i]
	st := p.sumStates[i]
	rec, ok := ev.value.(Record)
	if !ok {
		return p.run(mutating, i+1, ev)
	}
	raw, _ := rec.Get(op.aggField)
	f, ok := toFloat64(raw)
	if !ok {
		return newCallerDataError(fmt.Errorf("sum: field %q is not numeric (got %T)", op.aggField, raw))
	}
	slot := ev.sc.slot()
	if mutating && slot >= 0 {
		switch ev.kind {
		case evInsert:
			st.sums[slot] += f
		case evRetract:
			st.sums[slot] -= f
		}
		p.writeBack(slot, op.aggOutput, st.sums[slot])
	}
	return p.run(mutating, i+1, ev)
}

func (p *Pipeline) runAvg(mutating bool, i int, ev event) error {
	op := &p.ops[i]
	st := p.sumStates[i]
	rec, ok := ev.value.(Record)
	if !ok {
		return p.run(mutating, i+1, ev)
	}
	raw, _ := rec.Get(op.aggField)
	f, ok := toFloat64(raw)
	if !ok {
		return newCallerDataError(fmt.Errorf("avg: field %q is not numeric (got %T)", op.aggField, raw))
	}
	slot := ev.sc.slot()
	if mutating && slot >= 0 {
		switch ev.kind {
		case evInsert:
			st.sums[slot] += f
			st.counts[slot]++
		case evRetract:
			st.sums[slot] -= f
			st.counts[slot]--
		}
		if st.counts[slot] > 0 {
			p.writeBack(slot, op.aggOutput, st.sums[slot]/float64(st.counts[slot]))
		}
	}
	return p.run(mutating, i+1, ev)
}

func (p *Pipeline) runMin(mutating bool, i int, ev event) error {
	return p.runExtreme(mutating, i, ev, true)
}

func (p *Pipeline) runMax(mutating bool, i int, ev event) error {
	return p.runExtreme(mutating, i, ev, false)
}

func (p *Pipeline) runExtreme(mutating bool, i int, ev event, isMin bool) error {
	op := &p.ops[i]
	st := p.minMaxStates[i]
	rec, ok := ev.value.(Record)
	if !ok {
		return p.run(mutating, i+1, ev)
	}
	raw, _ := rec.Get(op.aggField)
	f, ok := toFloat64(raw)
	if !ok {
		return newCallerDataError(fmt.Errorf("min/max: field %q is not numeric (got %T)", op.aggField, raw))
	}
	slot := ev.sc.slot()
	if mutating && slot >= 0 {
		switch ev.kind {
		case evInsert:
			st.add(slot, f)
		case evRetract:
			st.remove(slot, f)
		}
		var extreme float64
		var any bool
		if isMin {
			extreme, any = st.min(slot)
		} else {
			extreme, any = st.max(slot)
		}
		if any {
			p.writeBack(slot, op.aggOutput, extreme)
		}
	}
	return p.run(mutating, i+1, ev)
}
