// Package store is the versioned store adapter: it owns the durable
// inventory document inside a git working tree and exposes commit
// creation and bounded history traversal over it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/technikum29/t29-inventory-server/internal/fsutil"
	"github.com/technikum29/t29-inventory-server/pkg/core"
	"github.com/technikum29/t29-inventory-server/pkg/git"
)

// DefaultLogItems bounds history traversal when the caller gives no limit.
const DefaultLogItems = 10

// headReadAttempts bounds the retry loop in Head when commits keep
// landing between the id and file reads.
const headReadAttempts = 3

var errHeadUnstable = errors.New("HEAD kept moving during read")

// Config holds the configuration for the git-backed repository.
type Config struct {
	Path          string // git working tree
	InventoryFile string // document file inside the tree, e.g. "inventory.json"
	AutoInit      bool
	MustExist     bool
	Logger        *slog.Logger
}

// Repository implements the versioned store over a git working tree.
// The inventory document is a single JSON file; every committed change
// is one git commit, and HEAD content is the current document.
type Repository struct {
	Path   string
	git    *git.Client
	config Config

	mu            sync.RWMutex
	watcherActive bool
	lastRefresh   *time.Time
}

// NewRepository creates a new git-backed repository.
func NewRepository(config Config) *Repository {
	if config.InventoryFile == "" {
		config.InventoryFile = "inventory.json"
	}
	return &Repository{
		Path:   config.Path,
		git:    git.NewClient(config.Path, config.Logger),
		config: config,
	}
}

// File returns the name of the inventory document inside the tree.
func (r *Repository) File() string {
	return r.config.InventoryFile
}

// Initialize performs the necessary setup for the repository (mkdir,
// git init, seed document). Safe to call on an existing repository.
func (r *Repository) Initialize(ctx context.Context) error {
	// 1. Directory Initialization
	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("repository path does not exist: %s", r.Path)
		}
		if !info.IsDir() {
			return fmt.Errorf("repository path is not a directory: %s", r.Path)
		}
	} else {
		if err := os.MkdirAll(r.Path, 0755); err != nil {
			return fmt.Errorf("failed to create repository directory: %w", err)
		}
	}

	// 2. Git Initialization
	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}
	if !r.git.IsRepo() {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
		if err := r.git.Init(); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
	}

	// 3. Seed the inventory document with an initial commit
	docPath := filepath.Join(r.Path, r.config.InventoryFile)
	if _, err := os.Stat(docPath); os.IsNotExist(err) {
		unlock, err := r.git.Lock()
		if err != nil {
			return fmt.Errorf("failed to acquire git lock: %w", err)
		}
		defer unlock()

		if err := fsutil.WriteFileAtomic(docPath, core.EmptyDocument, 0644); err != nil {
			return fmt.Errorf("failed to seed inventory file: %w", err)
		}
		if err := r.git.Add(r.config.InventoryFile); err != nil {
			return fmt.Errorf("failed to git add: %w", err)
		}
		server := "inventory-server"
		if err := r.git.CommitAs(server, core.AuthorEmail(server), "initial inventory"); err != nil {
			return fmt.Errorf("failed to commit seed document: %w", err)
		}
	}

	return nil
}

// Head returns the current commit id and document content. The file is
// re-read from disk on every call; nothing is cached across requests.
// Read-only: it does not take the commit lock. The commit id is read
// before and after the file, and the read retries while the two
// disagree, so a commit landing in between (for example an external
// git pull) cannot pair the previous document with the new id.
func (r *Repository) Head(ctx context.Context) (core.Snapshot, error) {
	docPath := filepath.Join(r.Path, r.config.InventoryFile)
	for attempt := 0; attempt < headReadAttempts; attempt++ {
		before, err := r.git.Head()
		if err != nil {
			return core.Snapshot{}, &core.StoreError{Op: "read", Err: err}
		}
		doc, err := os.ReadFile(docPath)
		if err != nil {
			return core.Snapshot{}, &core.StoreError{Op: "read", Err: err}
		}
		after, err := r.git.Head()
		if err != nil {
			return core.Snapshot{}, &core.StoreError{Op: "read", Err: err}
		}
		if before == after {
			return core.Snapshot{CommitID: after, Document: doc}, nil
		}
	}
	return core.Snapshot{}, &core.StoreError{Op: "read", Err: errHeadUnstable}
}

// Commit writes the new document state and records it as one git
// commit with the given author signature. The write is atomic (temp
// file + rename, then commit): a crash mid-way leaves HEAD pointing at
// the previous valid state, never a half-written one.
func (r *Repository) Commit(ctx context.Context, doc core.Document, author, message string) (string, error) {
	unlock, err := r.git.Lock()
	if err != nil {
		return "", &core.StoreError{Op: "commit", Err: err}
	}
	defer unlock()

	docPath := filepath.Join(r.Path, r.config.InventoryFile)
	if err := fsutil.WriteFileAtomic(docPath, doc, 0644); err != nil {
		return "", &core.StoreError{Op: "write", Err: err}
	}
	if err := r.git.Add(r.config.InventoryFile); err != nil {
		r.restoreWorkingTree()
		return "", &core.StoreError{Op: "commit", Err: err}
	}
	if err := r.git.CommitAs(author, core.AuthorEmail(author), message); err != nil {
		r.restoreWorkingTree()
		return "", &core.StoreError{Op: "commit", Err: err}
	}

	id, err := r.git.Head()
	if err != nil {
		return "", &core.StoreError{Op: "commit", Err: err}
	}

	if r.config.Logger != nil {
		r.config.Logger.Info("committed inventory change", "author", author, "commit", id)
	}
	return id, nil
}

// restoreWorkingTree resets the inventory file to HEAD content after a
// failed commit, so Head keeps reading the last valid committed state.
// A clean status means the failed command left nothing behind and the
// checkout is skipped.
func (r *Repository) restoreWorkingTree() {
	if status, err := r.git.Status(); err == nil && status == "" {
		return
	}
	if _, err := r.git.Run("checkout", "HEAD", "--", r.config.InventoryFile); err != nil {
		if r.config.Logger != nil {
			r.config.Logger.Error("failed to restore working tree", "error", err)
		}
	}
}

// Log projects the commit history into revision entries, newest first,
// truncated to maxItems (DefaultLogItems when <= 0). Read-only; never
// blocks on the commit lock.
func (r *Repository) Log(ctx context.Context, maxItems int) ([]core.RevisionEntry, error) {
	if maxItems <= 0 {
		maxItems = DefaultLogItems
	}
	raw, err := r.git.Log(maxItems)
	if err != nil {
		return nil, &core.StoreError{Op: "log", Err: err}
	}

	entries := make([]core.RevisionEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, core.RevisionEntry{
			Author:  e.Author,
			Date:    e.CommitTime.UTC().Format(time.RFC3339),
			ID:      e.ID,
			Message: e.Message,
		})
	}
	return entries, nil
}
