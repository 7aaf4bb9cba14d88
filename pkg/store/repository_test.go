package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/technikum29/t29-inventory-server/pkg/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(Config{
		Path:     filepath.Join(t.TempDir(), "repo"),
		AutoInit: true,
	})
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return repo
}

func TestInitialize_SeedsEmptyDocument(t *testing.T) {
	repo := newTestRepo(t)

	snap, err := repo.Head(context.Background())
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if string(snap.Document) != "{}" {
		t.Errorf("expected seed document {}, got %s", snap.Document)
	}
	if len(snap.CommitID) != 40 {
		t.Errorf("expected a commit id, got %q", snap.CommitID)
	}

	// Re-running Initialize must not create another commit
	if err := repo.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	entries, err := repo.Log(context.Background(), 10)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly the seed commit, got %d entries", len(entries))
	}
}

func TestInitialize_MustExist(t *testing.T) {
	repo := NewRepository(Config{
		Path:      filepath.Join(t.TempDir(), "missing"),
		MustExist: true,
	})
	if err := repo.Initialize(context.Background()); err == nil {
		t.Error("expected failure for missing directory with MustExist")
	}
}

func TestCommit_AdvancesHead(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	before, _ := repo.Head(ctx)

	doc := core.Document(`{"items":{"5":{"name":"PDP-11"}}}`)
	id, err := repo.Commit(ctx, doc, "alice", "add item 5")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if id == before.CommitID {
		t.Error("HEAD did not advance")
	}

	after, err := repo.Head(ctx)
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if after.CommitID != id {
		t.Errorf("Head %s does not match commit result %s", after.CommitID, id)
	}
	if string(after.Document) != string(doc) {
		t.Errorf("document mismatch: %s", after.Document)
	}
}

func TestCommit_IdenticalDocumentStillRecorded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id1, err := repo.Commit(ctx, core.EmptyDocument, "alice", "noop one")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	id2, err := repo.Commit(ctx, core.EmptyDocument, "alice", "noop two")
	if err != nil {
		t.Fatalf("identical commit failed: %v", err)
	}
	if id1 == id2 {
		t.Error("expected distinct commit ids")
	}
}

func TestLog_Projection(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c1, err := repo.Commit(ctx, core.Document(`{"item5":{}}`), "alice", "add item 5")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	c2, err := repo.Commit(ctx, core.Document(`{"item5":{"sold":true}}`), "bob", "mark item 5 sold")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	entries, err := repo.Log(ctx, 10)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	// seed commit + two changes, newest first
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != c2 || entries[0].Author != "bob" || entries[0].Message != "mark item 5 sold" {
		t.Errorf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].ID != c1 || entries[1].Author != "alice" || entries[1].Message != "add item 5" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}

	for _, e := range entries {
		parsed, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			t.Errorf("date %q is not RFC3339: %v", e.Date, err)
			continue
		}
		if parsed.Location() != time.UTC {
			t.Errorf("date %q not in UTC", e.Date)
		}
	}

	// Entries serialize with the wire field names
	data, _ := json.Marshal(entries[0])
	for _, key := range []string{`"author"`, `"date"`, `"id"`, `"message"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("serialized entry missing %s: %s", key, data)
		}
	}
}

func TestLog_DefaultTruncation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		doc, _ := json.Marshal(map[string]int{"rev": i})
		if _, err := repo.Commit(ctx, doc, "alice", "update"); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	entries, err := repo.Log(ctx, 0)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(entries) != DefaultLogItems {
		t.Errorf("expected default truncation to %d, got %d", DefaultLogItems, len(entries))
	}
}

// The document file and the commit id are read in separate git
// operations. A commit landing in between must never produce a
// snapshot whose document is older than the commit id it carries.
func TestHead_NeverPairsOldDocumentWithNewCommitID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const commits = 25
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= commits; i++ {
			doc, _ := json.Marshal(map[string]int{"rev": i})
			if _, err := repo.Commit(ctx, doc, "writer", "bump rev"); err != nil {
				t.Errorf("Commit failed: %v", err)
				return
			}
		}
	}()

	rev := func(data []byte) int {
		t.Helper()
		var doc struct {
			Rev int `json:"rev"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("unparseable document %q: %v", data, err)
		}
		return doc.Rev
	}

	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}

		snap, err := repo.Head(ctx)
		if err != nil {
			t.Fatalf("Head failed: %v", err)
		}
		committed, err := repo.git.Run("show", snap.CommitID+":"+repo.File())
		if err != nil {
			t.Fatalf("git show failed: %v", err)
		}
		if got, want := rev(snap.Document), rev([]byte(committed)); got < want {
			t.Fatalf("snapshot pairs document rev %d with commit id of rev %d", got, want)
		}
	}
}

func TestHead_MissingFile(t *testing.T) {
	repo := newTestRepo(t)
	if err := os.Remove(filepath.Join(repo.Path, repo.File())); err != nil {
		t.Fatal(err)
	}

	_, err := repo.Head(context.Background())
	var storeErr *core.StoreError
	if !errors.As(err, &storeErr) {
		t.Errorf("expected StoreError, got %v", err)
	}
}
