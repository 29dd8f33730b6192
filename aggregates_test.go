package ivm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldOf(t *testing.T, out []Value, want string) *GroupNode {
	t.Helper()
	for _, v := range out {
		n, ok := v.(*GroupNode)
		require.True(t, ok)
		if k, _ := n.Fields.Get("k"); k == want {
			return n
		}
	}
	t.Fatalf("no group found for key %q", want)
	return nil
}

func TestCountTracksMembership(t *testing.T) {
	decl := NewDeclaration().GroupBy([]string{"k"}, "items").Count("items", "n")
	p := Build(decl)

	r1 := Record{{"k", "A"}, {"v", 1.0}}
	r2 := Record{{"k", "A"}, {"v", 2.0}}
	require.NoError(t, p.Add("a", r1))
	require.NoError(t, p.Add("b", r2))

	n, _ := fieldOf(t, p.Output(), "A").Fields.Get("n")
	assert.Equal(t, 2, n)

	require.NoError(t, p.Remove("a", r1))
	n, _ = fieldOf(t, p.Output(), "A").Fields.Get("n")
	assert.Equal(t, 1, n)
}

func TestAvgRecomputesOnRetract(t *testing.T) {
	decl := NewDeclaration().GroupBy([]string{"k"}, "items").Avg("items", "v", "avg")
	p := Build(decl)

	r1 := Record{{"k", "A"}, {"v", 10.0}}
	r2 := Record{{"k", "A"}, {"v", 20.0}}
	require.NoError(t, p.Add("a", r1))
	require.NoError(t, p.Add("b", r2))

	avg, _ := fieldOf(t, p.Output(), "A").Fields.Get("avg")
	assert.Equal(t, 15.0, avg)

	require.NoError(t, p.Remove("a", r1))
	avg, _ = fieldOf(t, p.Output(), "A").Fields.Get("avg")
	assert.Equal(t, 20.0, avg)
}

func TestMinMaxRecomputeFromRemainingMultiset(t *testing.T) {
	decl := NewDeclaration().
		GroupBy([]string{"k"}, "items").
		Min("items", "v", "min").
		Max("items", "v", "max")
	p := Build(decl)

	r1 := Record{{"k", "A"}, {"v", 5.0}}
	r2 := Record{{"k", "A"}, {"v", 1.0}}
	r3 := Record{{"k", "A"}, {"v", 9.0}}
	require.NoError(t, p.Add("a", r1))
	require.NoError(t, p.Add("b", r2))
	require.NoError(t, p.Add("c", r3))

	node := fieldOf(t, p.Output(), "A")
	min, _ := node.Fields.Get("min")
	max, _ := node.Fields.Get("max")
	assert.Equal(t, 1.0, min)
	assert.Equal(t, 9.0, max)

	// Retracting the current minimum must recompute from what remains,
	// not just track a single running extreme.
	require.NoError(t, p.Remove("b", r2))
	node = fieldOf(t, p.Output(), "A")
	min, _ = node.Fields.Get("min")
	assert.Equal(t, 5.0, min)
}

func TestCachedDefinePropertyReproducesOnRetract(t *testing.T) {
	calls := 0
	decl := NewDeclaration().DefineCachedProperty("double", func(r Record) (Value, error) {
		calls++
		v, _ := r.Get("v")
		f, _ := toFloat64(v)
		return f * 2, nil
	})
	p := Build(decl)

	r := Record{{"v", 3.0}}
	require.NoError(t, p.Add("a", r))
	callsAfterAdd := calls
	assert.Greater(t, callsAfterAdd, 0)

	require.NoError(t, p.Remove("a", r))
	// fn must not be invoked again on retract once the value was cached
	// during Add.
	assert.Equal(t, callsAfterAdd, calls)
}
