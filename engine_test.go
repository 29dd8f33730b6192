package ivm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — Filter + group + sum.
func TestScenarioFilterGroupSum(t *testing.T) {
	decl := NewDeclaration().
		Filter(Eq("inStock", true).Eval).
		GroupBy([]string{"category"}, "items").
		Sum("items", "price", "totalInStock")
	p := Build(decl)

	require.NoError(t, p.Add("p1", Record{{"category", "E"}, {"price", 500.0}, {"inStock", true}}))
	require.NoError(t, p.Add("p2", Record{{"category", "E"}, {"price", 300.0}, {"inStock", false}}))
	require.NoError(t, p.Add("p3", Record{{"category", "E"}, {"price", 200.0}, {"inStock", true}}))

	out := p.Output()
	require.Len(t, out, 1)
	node, ok := out[0].(*GroupNode)
	require.True(t, ok)

	cat, _ := node.Fields.Get("category")
	assert.Equal(t, "E", cat)
	total, _ := node.Fields.Get("totalInStock")
	assert.Equal(t, 700.0, total)
	assert.Len(t, node.ChildArray, 2)
}

// S2 — Two-level nested grouping, with cascading destroy on empty.
func TestScenarioTwoLevelNestedGrouping(t *testing.T) {
	decl := NewDeclaration().
		GroupBy([]string{"state", "city"}, "towns").
		GroupBy([]string{"state"}, "cities")
	p := Build(decl)

	towns := []Record{
		{{"state", "TX"}, {"city", "Dallas"}, {"name", "Dallas-1"}},
		{{"state", "TX"}, {"city", "Dallas"}, {"name", "Dallas-2"}},
		{{"state", "TX"}, {"city", "Houston"}, {"name", "Houston-1"}},
		{{"state", "OK"}, {"city", "OKC"}, {"name", "OKC-1"}},
		{{"state", "OK"}, {"city", "Tulsa"}, {"name", "Tulsa-1"}},
	}
	for i, town := range towns {
		require.NoError(t, p.Add(idOf(i), town))
	}

	out := p.Output()
	require.Len(t, out, 2)

	var txState *GroupNode
	for _, v := range out {
		n := v.(*GroupNode)
		if s, _ := n.Fields.Get("state"); s == "TX" {
			txState = n
		}
	}
	require.NotNil(t, txState)
	assert.Len(t, txState.ChildArray, 2, "TX has Dallas and Houston")

	// Remove the sole Houston town: Houston city node (and nothing else) disappears.
	require.NoError(t, p.Remove(idOf(2), towns[2]))
	out = p.Output()
	for _, v := range out {
		n := v.(*GroupNode)
		if s, _ := n.Fields.Get("state"); s == "TX" {
			assert.Len(t, n.ChildArray, 1, "only Dallas remains under TX")
		}
	}

	// Remove both Dallas towns: TX state node disappears entirely.
	require.NoError(t, p.Remove(idOf(0), towns[0]))
	require.NoError(t, p.Remove(idOf(1), towns[1]))
	out = p.Output()
	require.Len(t, out, 1)
	s, _ := out[0].(*GroupNode).Fields.Get("state")
	assert.Equal(t, "OK", s)
}

// S3 — Scoped filter via in().
func TestScenarioScopedFilter(t *testing.T) {
	decl := NewDeclaration().
		GroupBy([]string{"department"}, "employees").
		In("employees").
		Filter(Gte("salary", 50000.0).Eval)
	p := Build(decl)

	require.NoError(t, p.Add("alice", Record{{"department", "Engineering"}, {"salary", 80000.0}}))
	require.NoError(t, p.Add("bob", Record{{"department", "Engineering"}, {"salary", 45000.0}}))
	require.NoError(t, p.Add("carol", Record{{"department", "Engineering"}, {"salary", 75000.0}}))

	out := p.Output()
	require.Len(t, out, 1)
	node := out[0].(*GroupNode)
	assert.Len(t, node.ChildArray, 2, "bob is filtered out of the scoped child array")
}

// S4 — Derived property then filter.
func TestScenarioDerivedPropertyThenFilter(t *testing.T) {
	decl := NewDeclaration().
		DefineProperty("sum", func(r Record) (Value, error) {
			a, _ := r.Get("a")
			b, _ := r.Get("b")
			af, _ := toFloat64(a)
			bf, _ := toFloat64(b)
			return af + bf, nil
		}).
		Filter(Gt("sum", 10.0).Eval)
	p := Build(decl)

	require.NoError(t, p.Add("r1", Record{{"a", 5.0}, {"b", 3.0}}))
	require.NoError(t, p.Add("r2", Record{{"a", 8.0}, {"b", 7.0}}))
	require.NoError(t, p.Add("r3", Record{{"a", 6.0}, {"b", 6.0}}))

	out := p.Output()
	require.Len(t, out, 2)
	for _, v := range out {
		r := v.(Record)
		sum, _ := r.Get("sum")
		assert.Greater(t, sum.(float64), 10.0)
	}
}

// S5 — Retract to empty leaves no internal state.
func TestScenarioRetractToEmpty(t *testing.T) {
	decl := NewDeclaration().
		GroupBy([]string{"category"}, "items").
		Sum("items", "price", "total")
	p := Build(decl)

	r1 := Record{{"category", "A"}, {"price", 10.0}}
	r2 := Record{{"category", "A"}, {"price", 20.0}}
	require.NoError(t, p.Add("x1", r1))
	require.NoError(t, p.Add("x2", r2))
	require.NoError(t, p.Remove("x1", r1))
	require.NoError(t, p.Remove("x2", r2))

	assert.Empty(t, p.Output())
	stats := p.Stats()
	assert.Equal(t, 0, stats.SinkSize)
	assert.Equal(t, 0, stats.LiveGroups)
	assert.Equal(t, 0, stats.TrackedSlots)
}

// S6 — Three-level nesting.
func TestScenarioThreeLevelNesting(t *testing.T) {
	decl := NewDeclaration().
		GroupBy([]string{"state", "city", "town"}, "buildings").
		GroupBy([]string{"state", "city"}, "towns").
		GroupBy([]string{"state"}, "cities")
	p := Build(decl)

	b1 := Record{{"state", "TX"}, {"city", "Dallas"}, {"town", "Downtown"}, {"name", "B1"}}
	b2 := Record{{"state", "TX"}, {"city", "Dallas"}, {"town", "Downtown"}, {"name", "B2"}}
	require.NoError(t, p.Add("b1", b1))
	require.NoError(t, p.Add("b2", b2))

	out := p.Output()
	require.Len(t, out, 1, "one state")
	state := out[0].(*GroupNode)
	require.Len(t, state.ChildArray, 1, "one city")
	city := state.ChildArray[0].(*GroupNode)
	require.Len(t, city.ChildArray, 1, "one town")
	town := city.ChildArray[0].(*GroupNode)
	require.Len(t, town.ChildArray, 2, "two buildings in insertion order")
	n1, _ := town.ChildArray[0].(Record).Get("name")
	n2, _ := town.ChildArray[1].(Record).Get("name")
	assert.Equal(t, "B1", n1)
	assert.Equal(t, "B2", n2)
}

// Universal invariant: add(id,r); remove(id,r) is a no-op on output().
func TestInvariantInsertRetractIsNoOp(t *testing.T) {
	decl := NewDeclaration().
		GroupBy([]string{"category"}, "items").
		Count("items", "count")
	p := Build(decl)

	before := p.Output()
	r := Record{{"category", "A"}, {"price", 10.0}}
	require.NoError(t, p.Add("a", r))
	require.NoError(t, p.Remove("a", r))
	assert.Equal(t, before, p.Output())
}

// Universal invariant: no group node with an empty child array ever
// appears in output().
func TestInvariantNoEmptyGroupNodes(t *testing.T) {
	decl := NewDeclaration().GroupBy([]string{"k"}, "items")
	p := Build(decl)

	r := Record{{"k", "only"}}
	require.NoError(t, p.Add("a", r))
	require.NoError(t, p.Remove("a", r))

	for _, v := range p.Output() {
		node, ok := v.(*GroupNode)
		require.True(t, ok)
		assert.NotEmpty(t, node.ChildArray)
	}
	assert.Empty(t, p.Output())
}

func TestRemoveUnknownIdentityIsProgrammingError(t *testing.T) {
	p := Build(NewDeclaration().GroupBy([]string{"k"}, "items"))
	err := p.Remove("ghost", Record{{"k", "x"}})
	require.Error(t, err)
	assert.True(t, ErrProgramming.Is(err))
}

func TestAddDuplicateIdentityIsProgrammingError(t *testing.T) {
	p := Build(NewDeclaration().GroupBy([]string{"k"}, "items"))
	r := Record{{"k", "x"}}
	require.NoError(t, p.Add("dup", r))
	err := p.Add("dup", r)
	require.Error(t, err)
	assert.True(t, ErrProgramming.Is(err))
}

func TestFilterPredicateErrorLeavesStateUntouched(t *testing.T) {
	decl := NewDeclaration().Filter(Gt("n", 0.0).Eval)
	p := Build(decl)

	err := p.Add("bad", Record{{"n", "not-a-number"}})
	require.Error(t, err)
	assert.True(t, ErrCallerData.Is(err))
	assert.Empty(t, p.Output())
}

func idOf(i int) string {
	return []string{"town0", "town1", "town2", "town3", "town4"}[i]
}
