// Package inventoryserver is the composition root for the inventory
// coordination server.
//
// It wires the git-backed store, the per-author workspaces, the
// broadcast hub and the commit coordinator into one System. The HTTP
// layer and the CLI both build on it; embedders that want the
// coordination semantics without the HTTP surface can use it directly.
package inventoryserver

import (
	"context"
	"log/slog"

	"github.com/technikum29/t29-inventory-server/pkg/broadcast"
	"github.com/technikum29/t29-inventory-server/pkg/core"
	"github.com/technikum29/t29-inventory-server/pkg/inventory"
	"github.com/technikum29/t29-inventory-server/pkg/store"
	"github.com/technikum29/t29-inventory-server/pkg/workspace"
)

// Version exposes the version of the server.
const Version = "1.0.0"

// Option defines a functional option for configuring the System.
type Option func(*options)

type options struct {
	inventoryFile string
	autoInit      bool
	mustExist     bool
	logger        *slog.Logger
}

// WithInventoryFile sets the tracked document file name inside the
// repository (default "inventory.json").
func WithInventoryFile(name string) Option {
	return func(o *options) { o.inventoryFile = name }
}

// WithAutoInit enables automatic initialization of the repository
// (creates the directory and runs git init).
func WithAutoInit(auto bool) Option {
	return func(o *options) { o.autoInit = auto }
}

// WithMustExist requires the repository directory to already exist.
func WithMustExist(must bool) Option {
	return func(o *options) { o.mustExist = must }
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// System bundles the wired components of one server instance.
type System struct {
	Repository *store.Repository
	Workspaces *workspace.Manager
	Hub        *broadcast.Hub
	Service    *inventory.Service
}

// New wires a System over the repository at repoPath with staged
// patches persisted under patchesDir. Call Initialize before use.
func New(repoPath, patchesDir string, opts ...Option) *System {
	o := options{autoInit: true}
	for _, opt := range opts {
		opt(&o)
	}

	repo := store.NewRepository(store.Config{
		Path:          repoPath,
		InventoryFile: o.inventoryFile,
		AutoInit:      o.autoInit,
		MustExist:     o.mustExist,
		Logger:        o.logger,
	})
	workspaces := workspace.NewManager(patchesDir, o.logger)
	hub := broadcast.NewHub(o.logger)

	return &System{
		Repository: repo,
		Workspaces: workspaces,
		Hub:        hub,
		Service:    inventory.NewService(repo, workspaces, hub, o.logger),
	}
}

// Initialize prepares the repository and recovers staged patches left
// behind by a previous run.
func (s *System) Initialize(ctx context.Context) error {
	if err := s.Repository.Initialize(ctx); err != nil {
		return err
	}
	return s.Workspaces.Initialize()
}

// StartWatcher begins watching the repository for commits made outside
// the server and feeds them to the hub. The watcher stops when ctx is
// cancelled. The hub deduplicates by commit id, so the server's own
// commits do not fan out twice.
func (s *System) StartWatcher(ctx context.Context, pattern string) error {
	updates, err := s.Repository.Watch(ctx, pattern)
	if err != nil {
		return err
	}
	go func() {
		for snap := range updates {
			s.Hub.Publish(core.Update{CommitID: snap.CommitID, Document: snap.Document})
		}
	}()
	return nil
}
