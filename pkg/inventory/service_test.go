package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/technikum29/t29-inventory-server/pkg/broadcast"
	"github.com/technikum29/t29-inventory-server/pkg/core"
	"github.com/technikum29/t29-inventory-server/pkg/store"
	"github.com/technikum29/t29-inventory-server/pkg/workspace"
)

type fixture struct {
	svc        *Service
	repo       *store.Repository
	workspaces *workspace.Manager
	hub        *broadcast.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	repo := store.NewRepository(store.Config{
		Path:     filepath.Join(dir, "repo"),
		AutoInit: true,
	})
	require.NoError(t, repo.Initialize(context.Background()))

	workspaces := workspace.NewManager(filepath.Join(dir, "patches"), nil)
	require.NoError(t, workspaces.Initialize())

	hub := broadcast.NewHub(nil)
	return &fixture{
		svc:        NewService(repo, workspaces, hub, nil),
		repo:       repo,
		workspaces: workspaces,
		hub:        hub,
	}
}

func TestSubmit_StagesAndPreviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.Submit(ctx, "alice", []byte(`[{"op":"add","path":"/item5","value":{"name":"PDP-11"}}]`))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(snap.Document, &doc))
	require.Contains(t, doc, "item5")

	ws, err := f.workspaces.Open("alice")
	require.NoError(t, err)
	require.Equal(t, 1, ws.PendingCount())

	// The shared document is untouched until commit
	head, err := f.repo.Head(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(head.Document))
}

func TestSubmit_ConflictStagesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "alice", []byte(`[{"op":"remove","path":"/missing"}]`))
	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, 0, conflict.Index)

	ws, err := f.workspaces.Open("alice")
	require.NoError(t, err)
	require.Equal(t, 0, ws.PendingCount())
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "../etc", []byte(`[]`))
	require.ErrorIs(t, err, core.ErrInvalidAuthor)

	_, err = f.svc.Submit(ctx, "alice", []byte(`{"op":"add"}`))
	require.ErrorIs(t, err, core.ErrMalformedPatch)
}

func TestCommit_PublishesToSubscribers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.hub.Subscribe()
	defer f.hub.Unsubscribe(sub)

	_, err := f.svc.Submit(ctx, "alice", []byte(`[{"op":"add","path":"/item5","value":{}}]`))
	require.NoError(t, err)

	commitID, doc, err := f.svc.Commit(ctx, "alice", "add item 5")
	require.NoError(t, err)
	require.NotEmpty(t, commitID)

	select {
	case u := <-sub.Updates():
		require.Equal(t, commitID, u.CommitID)
		require.JSONEq(t, string(doc), string(u.Document))
	case <-time.After(time.Second):
		t.Fatal("no update broadcast after commit")
	}

	// Pending list cleared after a successful commit
	ws, _ := f.workspaces.Open("alice")
	require.Equal(t, 0, ws.PendingCount())
}

func TestCommit_NothingStaged(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Commit(context.Background(), "alice", "empty")
	require.ErrorIs(t, err, core.ErrNothingStaged)
}

func TestCommit_Ordering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "alice", []byte(`[{"op":"add","path":"/item5","value":{}}]`))
	require.NoError(t, err)
	c1, _, err := f.svc.Commit(ctx, "alice", "add item 5")
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "bob", []byte(`[{"op":"add","path":"/item5/sold","value":true}]`))
	require.NoError(t, err)
	c2, _, err := f.svc.Commit(ctx, "bob", "mark item 5 sold")
	require.NoError(t, err)

	entries, err := f.svc.Log(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)

	// Newest first: a commit acknowledged before another was attempted
	// must appear later in the log (it is the other's ancestor).
	require.Equal(t, c2, entries[0].ID)
	require.Equal(t, "bob", entries[0].Author)
	require.Equal(t, "mark item 5 sold", entries[0].Message)
	require.Equal(t, c1, entries[1].ID)
	require.Equal(t, "alice", entries[1].Author)
}

// Two authors stage disjoint-path patches from the same HEAD and commit
// concurrently. Both commits must succeed and the final document must
// reflect both changes: the later committer re-validates against the
// earlier committer's result, and disjoint paths apply cleanly.
func TestCommit_ConcurrentDisjointPaths_NoLostUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "alice", []byte(`[{"op":"add","path":"/alice","value":1}]`))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, "bob", []byte(`[{"op":"add","path":"/bob","value":2}]`))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, author := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, author string) {
			defer wg.Done()
			_, _, errs[i] = f.svc.Commit(ctx, author, "update by "+author)
		}(i, author)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	head, err := f.repo.Head(ctx)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(head.Document, &doc))
	require.Equal(t, float64(1), doc["alice"])
	require.Equal(t, float64(2), doc["bob"])
}

// Two authors guard the same path with a test op from the same base
// HEAD. The first commit wins; the second one's re-validation against
// the new HEAD fails its test op, HEAD stays at the first commit and
// the loser keeps its pending list for a retry.
func TestCommit_SamePathConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed a state both authors start from
	_, err := f.svc.Submit(ctx, "setup", []byte(`[{"op":"add","path":"/item5","value":{"state":"free"}}]`))
	require.NoError(t, err)
	_, _, err = f.svc.Commit(ctx, "setup", "seed item 5")
	require.NoError(t, err)

	guarded := `[
		{"op":"test","path":"/item5/state","value":"free"},
		{"op":"replace","path":"/item5/state","value":"%s"}
	]`
	_, err = f.svc.Submit(ctx, "alice", []byte(fmt.Sprintf(guarded, "marked")))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, "bob", []byte(fmt.Sprintf(guarded, "sold")))
	require.NoError(t, err)

	first, _, err := f.svc.Commit(ctx, "alice", "mark item 5")
	require.NoError(t, err)

	_, _, err = f.svc.Commit(ctx, "bob", "sell item 5")
	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, 0, conflict.Index)
	require.Equal(t, "test", conflict.Op)

	// HEAD equals the first commit
	head, err := f.repo.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, first, head.CommitID)

	// The loser's pending list is intact for reconcile-and-retry
	ws, _ := f.workspaces.Open("bob")
	require.Equal(t, 2, ws.PendingCount())
}

func TestCommit_SameAuthorBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "alice", []byte(`[{"op":"add","path":"/x","value":1}]`))
	require.NoError(t, err)

	// Claim the commit slot as a concurrent commit attempt would.
	ws, err := f.workspaces.Open("alice")
	require.NoError(t, err)
	require.NoError(t, ws.BeginCommit())
	defer ws.EndCommit()

	_, _, err = f.svc.Commit(ctx, "alice", "second attempt")
	require.ErrorIs(t, err, core.ErrWorkspaceBusy)
}

func TestDiscard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "alice", []byte(`[{"op":"add","path":"/x","value":1}]`))
	require.NoError(t, err)
	require.NoError(t, f.svc.Discard(ctx, "alice"))

	_, _, err = f.svc.Commit(ctx, "alice", "after discard")
	require.ErrorIs(t, err, core.ErrNothingStaged)
}
