// Package fingerprint computes stable identity strings for records, the
// out-of-scope-but-specified identity function a caller uses to assign
// ivm.Pipeline.Add/Remove their id argument (§6.3).
package fingerprint

import (
	"fmt"

	"github.com/mitchellh/hashstructure"

	"github.com/squall-chua/ivm"
)

// Of returns a deterministic fingerprint of r restricted to fields: two
// records produce the same fingerprint for the same field list iff the
// selected fields are structurally equal (§6.3). Field order in the
// argument does not affect the result.
func Of(r ivm.Record, fields []string) (string, error) {
	projected := make(map[string]ivm.Value, len(fields))
	for _, f := range fields {
		v, _ := r.Get(f)
		projected[f] = v
	}
	h, err := hashstructure.Hash(projected, nil)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return fmt.Sprintf("%x", h), nil
}
