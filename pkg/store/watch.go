package store

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/technikum29/t29-inventory-server/internal/fsutil"
	"github.com/technikum29/t29-inventory-server/pkg/core"
)

// Watch observes the working tree for changes made outside the server
// (a manual `git commit`, a pulled update) and emits the new HEAD
// snapshot whenever the commit id moves. pattern is a doublestar glob
// matched against paths relative to the repository root.
//
// The returned channel is closed when ctx is cancelled. Snapshots are
// deduplicated by commit id, so the server's own commits, which also
// touch the working tree, do not produce extra emissions downstream.
func (r *Repository) Watch(ctx context.Context, pattern string) (<-chan core.Snapshot, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &core.StoreError{Op: "watch", Err: err}
	}
	if err := watcher.Add(r.Path); err != nil {
		_ = watcher.Close()
		return nil, &core.StoreError{Op: "watch", Err: err}
	}
	// Watching .git lets us pause while git holds index.lock and
	// refresh exactly when an operation finishes.
	_ = watcher.Add(filepath.Join(r.Path, ".git"))

	updates := make(chan core.Snapshot, 16)
	deb := newDebouncer(50 * time.Millisecond)
	r.setWatcherActive(true)

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(updates)
		defer watcher.Close()
		defer deb.stop()
		defer r.setWatcherActive(false)

		var gitLocked bool

		// lastSeen is read and written from debounced timer callbacks,
		// which may overlap with a rescheduled one that already fired.
		var seenMu sync.Mutex
		var lastSeen string

		refresh := func() {
			deb.trigger(func() {
				snap, err := r.Head(ctx)
				if err != nil {
					if r.config.Logger != nil {
						r.config.Logger.Warn("watch refresh failed", "error", err)
					}
					return
				}
				seenMu.Lock()
				dup := snap.CommitID == lastSeen
				if !dup {
					lastSeen = snap.CommitID
				}
				seenMu.Unlock()
				if dup {
					return
				}
				r.recordRefresh()
				select {
				case updates <- snap:
				case <-ctx.Done():
				}
			})
		}

		for {
			select {
			case <-ctx.Done():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}

				if handled, locked := gitLockTransition(event, gitLocked); handled {
					gitLocked = locked
					if !locked {
						// Git finished an operation; HEAD may have moved.
						refresh()
					}
					continue
				}
				if gitLocked {
					continue
				}
				if r.shouldIgnore(event.Name) {
					continue
				}
				if !r.matches(event.Name, pattern) {
					continue
				}
				refresh()

			case wErr, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if r.config.Logger != nil {
					r.config.Logger.Error("fsnotify error", "error", wErr)
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		if r.config.Logger != nil {
			r.config.Logger.Error("watcher failure", "error", err)
		}
	}))

	return updates, nil
}

// gitLockTransition detects .git/index.lock create/remove events.
func gitLockTransition(event fsnotify.Event, current bool) (handled, locked bool) {
	if filepath.Base(event.Name) != "index.lock" {
		return false, current
	}
	if filepath.Base(filepath.Dir(event.Name)) != ".git" {
		return false, current
	}
	if event.Has(fsnotify.Create) {
		return true, true
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true, false
	}
	return true, current
}

// shouldIgnore filters our own transient files and git internals.
func (r *Repository) shouldIgnore(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, fsutil.TempFilePrefix) {
		return true
	}
	if base == ".inventory.lock" {
		return true
	}
	rel, err := filepath.Rel(r.Path, name)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	return rel == ".git" || strings.HasPrefix(rel, ".git/")
}

// matches applies the configured doublestar pattern.
func (r *Repository) matches(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	rel, err := filepath.Rel(r.Path, name)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
	return err == nil && ok
}
