// Package workspace manages the durable per-author staging areas where
// patches accumulate before being committed.
package workspace

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/technikum29/t29-inventory-server/internal/fsutil"
	"github.com/technikum29/t29-inventory-server/pkg/core"
	"github.com/technikum29/t29-inventory-server/pkg/patch"
)

// pendingFile is the on-disk representation of staged patches.
type pendingFile struct {
	Version int               `json:"version"`
	Author  string            `json:"author"`
	Ops     []json.RawMessage `json:"ops"`
}

// Workspace is one author's staging area. Pending operations are
// persisted before Stage acknowledges, so they survive a restart.
type Workspace struct {
	Author string

	path    string // pending.json inside the author's directory
	mu      sync.Mutex
	pending []json.RawMessage

	// commitMu serializes commit attempts for this author. It is taken
	// with TryLock so a concurrent second commit fails fast instead of
	// queueing behind the first.
	commitMu sync.Mutex
}

// Stage appends operations to the pending list and persists it.
// The raw list must already have been validated by patch.Decode.
func (w *Workspace) Stage(rawOps []byte) error {
	var ops []json.RawMessage
	if err := json.Unmarshal(rawOps, &ops); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedPatch, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	staged := append(append([]json.RawMessage{}, w.pending...), ops...)
	if err := w.persist(staged); err != nil {
		return err
	}
	w.pending = staged
	return nil
}

// Discard clears all pending operations, on disk and in memory.
func (w *Workspace) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.persist(nil); err != nil {
		return err
	}
	w.pending = nil
	return nil
}

// PendingCount returns the number of staged operations.
func (w *Workspace) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// PendingOps returns the staged operations as a decoded patch.
func (w *Workspace) PendingOps() (patch.Ops, error) {
	w.mu.Lock()
	raw, err := json.Marshal(ops(w.pending))
	w.mu.Unlock()
	if err != nil {
		return patch.Ops{}, err
	}
	return patch.Decode(raw)
}

// BeginCommit claims the single commit slot for this author.
// It returns ErrWorkspaceBusy if a commit is already in flight.
// The caller must call EndCommit when the attempt finishes.
func (w *Workspace) BeginCommit() error {
	if !w.commitMu.TryLock() {
		return fmt.Errorf("%w (author %q)", core.ErrWorkspaceBusy, w.Author)
	}
	return nil
}

// EndCommit releases the commit slot.
func (w *Workspace) EndCommit() {
	w.commitMu.Unlock()
}

// persist writes the pending list durably. Caller holds w.mu.
func (w *Workspace) persist(staged []json.RawMessage) error {
	data, err := json.MarshalIndent(pendingFile{
		Version: 1,
		Author:  w.Author,
		Ops:     ops(staged),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(w.path, data, 0644); err != nil {
		return &core.StoreError{Op: "write", Err: err}
	}
	return nil
}

// ops normalizes nil to an empty slice so the JSON stays a list.
func ops(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return []json.RawMessage{}
	}
	return in
}
