package workspace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/technikum29/t29-inventory-server/pkg/core"
)

const pendingFileName = "pending.json"

// Manager hands out one Workspace per author identifier. Workspaces are
// backed by directories under Dir; opening is idempotent and reloads
// whatever a previous process left behind.
type Manager struct {
	Dir    string
	Logger *slog.Logger

	mu   sync.Mutex
	open map[string]*Workspace
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string, logger *slog.Logger) *Manager {
	return &Manager{
		Dir:    dir,
		Logger: logger,
		open:   make(map[string]*Workspace),
	}
}

// Initialize ensures the workspace root directory exists.
func (m *Manager) Initialize() error {
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	return nil
}

// Open returns the workspace for the given author, creating it if needed.
// The author identifier is validated before any I/O; a workspace left on
// disk by a crashed session is recovered with its pending patches intact.
func (m *Manager) Open(author string) (*Workspace, error) {
	if err := core.ValidateAuthor(author); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.open[author]; ok {
		return ws, nil
	}

	dir := filepath.Join(m.Dir, author)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &core.StoreError{Op: "write", Err: err}
	}

	ws := &Workspace{
		Author: author,
		path:   filepath.Join(dir, pendingFileName),
	}
	if err := m.load(ws); err != nil {
		return nil, err
	}

	if m.Logger != nil {
		m.Logger.Debug("opened workspace", "author", author, "pending", len(ws.pending))
	}

	m.open[author] = ws
	return ws, nil
}

// load reads a pending file left by an earlier session, if any.
func (m *Manager) load(ws *Workspace) error {
	data, err := os.ReadFile(ws.path)
	if os.IsNotExist(err) {
		return nil // Fresh workspace
	}
	if err != nil {
		return &core.StoreError{Op: "read", Err: err}
	}

	var pf pendingFile
	if err := json.Unmarshal(data, &pf); err != nil {
		// Staged patches are author data: never silently drop them.
		return &core.StoreError{Op: "read", Err: fmt.Errorf("corrupt pending file %s: %w", ws.path, err)}
	}
	ws.pending = pf.Ops
	return nil
}
