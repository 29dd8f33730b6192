package ivm

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// groupKey is the flattened tuple of field values a groupBy operator
// extracts from a member's key fields. Keys compare by structural equality
// of their components (§3 "Group key"); we canonicalize to a string so it
// can be used directly as a Go map key, which also gives us a cheap,
// deterministic identity for comparing two keys without reflect.DeepEqual
// on every lookup.
type groupKey string

// makeKey projects keyFields out of a record in declared order and
// canonicalizes them into a comparable groupKey.
func makeKey(r Record, keyFields []string) groupKey {
	s := ""
	for _, f := range keyFields {
		v, _ := r.Get(f)
		s += fmt.Sprintf("\x1f%T:%v", v, v)
	}
	return groupKey(s)
}

// keyFieldsOf builds the Record of key-field/value pairs a new GroupNode
// exposes as its own top-level properties (§3 "key fields flattened as
// top-level properties").
func keyFieldsOf(r Record, keyFields []string) Record {
	out := make(Record, 0, len(keyFields))
	for _, f := range keyFields {
		v, _ := r.Get(f)
		out = append(out, bson.E{Key: f, Value: v})
	}
	return out
}
