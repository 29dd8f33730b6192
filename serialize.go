package ivm

import (
	"bytes"
	"encoding/json"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// toBSON converts an engine Value (which may nest Records and *GroupNodes)
// into a plain bson.D/bson.A tree MarshalExtJSON can serialize directly,
// the same MarshalExtJSON-based rendering gmqb.toJSON used for wire query
// documents — reused here for engine output instead of a query (§6.2
// driver: "serializes output() as JSON").
func toBSON(v Value) interface{} {
	switch x := v.(type) {
	case Record:
		out := make(bson.D, len(x))
		for i, e := range x {
			out[i] = bson.E{Key: e.Key, Value: toBSON(e.Value)}
		}
		return out
	case *GroupNode:
		out := make(bson.D, 0, len(x.Fields)+1)
		for _, e := range x.Fields {
			out = append(out, bson.E{Key: e.Key, Value: toBSON(e.Value)})
		}
		arr := make(bson.A, len(x.ChildArray))
		for i, m := range x.ChildArray {
			arr[i] = toBSON(m)
		}
		out = append(out, bson.E{Key: x.ChildArrayName, Value: arr})
		return out
	case []Value:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = toBSON(e)
		}
		return out
	default:
		return x
	}
}

// MarshalOutputJSON renders a Pipeline.Output() snapshot as a
// pretty-printed JSON array.
func MarshalOutputJSON(values []Value) (string, error) {
	arr := make(bson.A, len(values))
	for i, v := range values {
		arr[i] = toBSON(v)
	}
	raw, err := bson.MarshalExtJSON(arr, false, false)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw), nil
	}
	return buf.String(), nil
}

// UnmarshalInputRecords parses a JSON array of flat objects into Records,
// the shape the §6.2 driver's input file is specified to hold.
func UnmarshalInputRecords(data []byte) ([]Record, error) {
	var raw []bson.D
	if err := bson.UnmarshalExtJSON(data, false, &raw); err != nil {
		return nil, err
	}
	out := make([]Record, len(raw))
	for i, d := range raw {
		out[i] = Record(d)
	}
	return out, nil
}
