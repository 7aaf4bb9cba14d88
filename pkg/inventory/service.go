// Package inventory contains the commit coordinator: the component that
// serializes the stage, validate, commit, publish sequence across all
// authors so commits to the shared history are strictly ordered.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/technikum29/t29-inventory-server/pkg/broadcast"
	"github.com/technikum29/t29-inventory-server/pkg/core"
	"github.com/technikum29/t29-inventory-server/pkg/patch"
	"github.com/technikum29/t29-inventory-server/pkg/store"
	"github.com/technikum29/t29-inventory-server/pkg/workspace"
)

// Service coordinates patch submission and commits over the shared
// repository. All commit attempts queue on a single write mutex and are
// applied in arrival order; the mutex is held only across the in-memory
// validate-and-persist sequence, never across network I/O.
type Service struct {
	repo       *store.Repository
	workspaces *workspace.Manager
	hub        *broadcast.Hub
	logger     *slog.Logger

	// commitMu is the single global write lock guarding HEAD advancement.
	commitMu sync.Mutex
}

// NewService wires the coordinator to its collaborators.
func NewService(repo *store.Repository, workspaces *workspace.Manager, hub *broadcast.Hub, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		workspaces: workspaces,
		hub:        hub,
		logger:     logger,
	}
}

// Submit validates a patch against the author's staged view of the
// current document and stages it on success. The returned snapshot
// carries the previewed document: the state the inventory would reach
// if the workspace were committed right now. Nothing is staged when any
// operation conflicts.
func (s *Service) Submit(ctx context.Context, author string, rawOps []byte) (core.Snapshot, error) {
	ws, err := s.workspaces.Open(author)
	if err != nil {
		return core.Snapshot{}, err
	}

	ops, err := patch.Decode(rawOps)
	if err != nil {
		return core.Snapshot{}, err
	}

	head, err := s.repo.Head(ctx)
	if err != nil {
		return core.Snapshot{}, err
	}

	// Pending ops first: they were accepted earlier and belong to the
	// author's view. A conflict here means HEAD moved underneath the
	// workspace since they were staged.
	pending, err := ws.PendingOps()
	if err != nil {
		return core.Snapshot{}, err
	}
	base, err := patch.Apply(head.Document, pending)
	if err != nil {
		return core.Snapshot{}, err
	}

	// New ops applied separately so a ConflictError index refers to the
	// submitted list, not the concatenation.
	preview, err := patch.Apply(base, ops)
	if err != nil {
		return core.Snapshot{}, err
	}

	if err := ws.Stage(rawOps); err != nil {
		return core.Snapshot{}, err
	}

	if s.logger != nil {
		s.logger.Debug("staged patch", "author", author, "ops", ops.Len(), "base", head.CommitID)
	}
	return core.Snapshot{CommitID: head.CommitID, Document: preview}, nil
}

// Commit turns the author's staged operations into one commit.
//
// The critical section re-reads HEAD under the write lock and re-applies
// the pending operations against it, which is what prevents lost updates
// when two authors commit concurrently: the second committer validates
// against the first committer's result, not its own stale base. On
// conflict HEAD is untouched and the pending list stays intact for the
// client to reconcile and retry.
func (s *Service) Commit(ctx context.Context, author, message string) (string, core.Document, error) {
	ws, err := s.workspaces.Open(author)
	if err != nil {
		return "", nil, err
	}
	if err := ws.BeginCommit(); err != nil {
		return "", nil, err
	}
	defer ws.EndCommit()

	if ws.PendingCount() == 0 {
		return "", nil, fmt.Errorf("%w (author %q)", core.ErrNothingStaged, author)
	}
	if message == "" {
		message = "inventory update by " + author
	}

	s.commitMu.Lock()
	commitID, doc, commitErr := s.commitLocked(ctx, ws, author, message)
	s.commitMu.Unlock()

	// Fan-out happens after the lock is released so a slow subscriber
	// never blocks the next commit. A non-empty commit id means HEAD
	// advanced, even if post-commit cleanup reported an error.
	if commitID != "" {
		s.hub.Publish(core.Update{CommitID: commitID, Document: doc})
	}

	if commitErr != nil {
		return "", nil, commitErr
	}
	return commitID, doc, nil
}

// commitLocked runs steps 2-4 of the commit protocol. Caller holds
// commitMu and the author's commit slot.
func (s *Service) commitLocked(ctx context.Context, ws *workspace.Workspace, author, message string) (string, core.Document, error) {
	head, err := s.repo.Head(ctx)
	if err != nil {
		return "", nil, err
	}

	pending, err := ws.PendingOps()
	if err != nil {
		return "", nil, err
	}
	doc, err := patch.Apply(head.Document, pending)
	if err != nil {
		// Conflict: HEAD untouched, pending intact.
		return "", nil, err
	}

	commitID, err := s.repo.Commit(ctx, doc, author, message)
	if err != nil {
		return "", nil, err
	}

	if err := ws.Discard(); err != nil {
		// The commit stands; only the cleanup of the staging area
		// failed. Surface it so the client knows to discard manually.
		if s.logger != nil {
			s.logger.Error("failed to clear workspace after commit", "author", author, "commit", commitID, "error", err)
		}
		return commitID, doc, err
	}

	return commitID, doc, nil
}

// Discard drops the author's staged operations without committing.
func (s *Service) Discard(ctx context.Context, author string) error {
	ws, err := s.workspaces.Open(author)
	if err != nil {
		return err
	}
	return ws.Discard()
}

// CurrentState returns the committed HEAD snapshot, for clients that
// (re)connect and need to catch up before receiving live updates.
func (s *Service) CurrentState(ctx context.Context) (core.Snapshot, error) {
	return s.repo.Head(ctx)
}

// Log returns the revision history projection, newest first.
func (s *Service) Log(ctx context.Context, maxItems int) ([]core.RevisionEntry, error) {
	return s.repo.Log(ctx, maxItems)
}
