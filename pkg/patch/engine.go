// Package patch applies JSON-patch operation lists to inventory documents.
//
// Application is strictly ordered and atomic: the first failing operation
// aborts the whole patch and the input document is never modified.
package patch

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/technikum29/t29-inventory-server/pkg/core"
)

// Ops is a decoded, validated JSON-patch operation list.
type Ops struct {
	patch jsonpatch.Patch
	raw   []byte
}

// Decode parses raw JSON into an operation list.
func Decode(data []byte) (Ops, error) {
	p, err := jsonpatch.DecodePatch(data)
	if err != nil {
		return Ops{}, fmt.Errorf("%w: %v", core.ErrMalformedPatch, err)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Ops{patch: p, raw: buf}, nil
}

// Len returns the number of operations.
func (o Ops) Len() int {
	return len(o.patch)
}

// Raw returns the JSON encoding the ops were decoded from.
func (o Ops) Raw() []byte {
	return o.raw
}

// Apply runs the operations left-to-right against a working copy of doc.
// On success the fully materialized new document is returned. The first
// failing operation aborts with a ConflictError naming its index; no
// partial result is ever observable.
func Apply(doc core.Document, ops Ops) (core.Document, error) {
	working := doc
	for i, op := range ops.patch {
		// One operation at a time so a failure can name its index.
		next, err := jsonpatch.Patch{op}.Apply(working)
		if err != nil {
			return nil, &core.ConflictError{
				Index:  i,
				Op:     op.Kind(),
				Reason: err.Error(),
			}
		}
		working = next
	}
	return working, nil
}
