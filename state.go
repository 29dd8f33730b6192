package ivm

import (
	"context"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	gocachestore "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
)

// propertyCache memoizes the last (name, value) a cached defineProperty
// stage computed for a given identity, so Retract can reproduce the
// augmented record without recomputing fn (§4.3). Backed by the same
// eko/gocache-over-go-cache stack the teacher's module already depends
// on, here actually doing the memoizing work it was vendored for instead
// of sitting unused.
type propertyCache struct {
	mgr *cache.Cache[Value]
}

func newPropertyCache() *propertyCache {
	underlying := gocache.New(gocache.NoExpiration, 30*time.Minute)
	store := gocachestore.NewGoCache(underlying)
	return &propertyCache{mgr: cache.New[Value](store)}
}

func (c *propertyCache) get(id string) (Value, bool) {
	v, err := c.mgr.Get(context.Background(), id)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *propertyCache) set(id string, v Value) {
	_ = c.mgr.Set(context.Background(), id, v)
}

func (c *propertyCache) delete(id string) {
	_ = c.mgr.Delete(context.Background(), id)
}

// groupByState is a groupBy operator's live bookkeeping: the ordered
// mapping from key-tuple to group node (§4.3 "State: an ordered mapping
// from key-tuple → group node").
type groupByState struct {
	groups map[groupKey]*GroupNode
	order  []groupKey
}

func newGroupByState() *groupByState {
	return &groupByState{groups: make(map[groupKey]*GroupNode)}
}

func (s *groupByState) create(key groupKey, node *GroupNode) {
	s.groups[key] = node
	s.order = append(s.order, key)
}

func (s *groupByState) destroy(key groupKey) {
	delete(s.groups, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// countState is a count operator's per-group member counter.
type countState struct {
	counts map[int]int
}

func newCountState() *countState { return &countState{counts: make(map[int]int)} }

// sumState is a sum or avg operator's per-group accumulator. avg needs
// both the running sum and the member count, so it reuses this type.
type sumState struct {
	sums   map[int]float64
	counts map[int]int
}

func newSumState() *sumState {
	return &sumState{sums: make(map[int]float64), counts: make(map[int]int)}
}

// minMaxState is a min or max operator's per-group contributing-value
// multiset — required to retract correctly, since removing the current
// extreme value means the new extreme must be recomputed from whatever
// remains (§4.3: "min/max require a multiset of contributing values to
// retract correctly").
type minMaxState struct {
	values map[int][]float64
}

func newMinMaxState() *minMaxState { return &minMaxState{values: make(map[int][]float64)} }

func (s *minMaxState) add(slot int, v float64) {
	s.values[slot] = append(s.values[slot], v)
}

// remove deletes one occurrence of v from the slot's multiset.
func (s *minMaxState) remove(slot int, v float64) {
	vs := s.values[slot]
	for i, x := range vs {
		if x == v {
			s.values[slot] = append(vs[:i], vs[i+1:]...)
			return
		}
	}
}

func (s *minMaxState) min(slot int) (float64, bool) {
	vs := s.values[slot]
	if len(vs) == 0 {
		return 0, false
	}
	m := vs[0]
	for _, x := range vs[1:] {
		if x < m {
			m = x
		}
	}
	return m, true
}

func (s *minMaxState) max(slot int) (float64, bool) {
	vs := s.values[slot]
	if len(vs) == 0 {
		return 0, false
	}
	m := vs[0]
	for _, x := range vs[1:] {
		if x > m {
			m = x
		}
	}
	return m, true
}

// toFloat64 converts a numeric Value to float64 for accumulator purposes.
// Per §7 "numeric semantics", NaN/±Inf inputs are propagated without
// special handling; non-numeric input is the caller's error to avoid.
func toFloat64(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
