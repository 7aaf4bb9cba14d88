package store

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path          string     `json:"path"`
	InventoryFile string     `json:"inventory_file"`
	WatcherActive bool       `json:"watcher_active"`
	LastRefresh   *time.Time `json:"last_refresh,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RepositoryState{
		Path:          r.Path,
		InventoryFile: r.config.InventoryFile,
		WatcherActive: r.watcherActive,
		LastRefresh:   r.lastRefresh,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)

func (r *Repository) setWatcherActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcherActive = active
}

func (r *Repository) recordRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.lastRefresh = &now
}
