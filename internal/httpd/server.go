// Package httpd exposes the inventory service over HTTP: a JSON API
// for staging and committing patches, a websocket feed of committed
// updates, and optional static file serving for the web client.
package httpd

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/technikum29/t29-inventory-server/internal/config"
	"github.com/technikum29/t29-inventory-server/pkg/broadcast"
	"github.com/technikum29/t29-inventory-server/pkg/inventory"
	"github.com/technikum29/t29-inventory-server/pkg/store"
)

// Server is the HTTP front of the inventory service.
type Server struct {
	cfg    config.Config
	svc    *inventory.Service
	hub    *broadcast.Hub
	repo   *store.Repository
	logger *slog.Logger

	httpServer *http.Server
}

// NewServer builds the server and its route table from the
// configuration. Routes come from config, never from package-level
// registration, so two servers in one process cannot collide.
func NewServer(cfg config.Config, svc *inventory.Service, hub *broadcast.Hub, repo *store.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		hub:    hub,
		repo:   repo,
		logger: logger,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the fully wired route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logMiddleware, corsMiddleware)

	routes := s.cfg.Server.Routes
	r.Methods(http.MethodPost).Path(routes.Patch).HandlerFunc(s.handlePatch)
	r.Methods(http.MethodPost).Path(routes.Commit).HandlerFunc(s.handleCommit)
	r.Methods(http.MethodPost).Path(routes.Discard).HandlerFunc(s.handleDiscard)
	r.Methods(http.MethodGet).Path(routes.Log).HandlerFunc(s.handleLog)
	r.Methods(http.MethodGet).Path(routes.Head).HandlerFunc(s.handleHead)
	r.Methods(http.MethodGet).Path(routes.State).HandlerFunc(s.handleState)
	r.Methods(http.MethodGet).Path(routes.Subscribe).HandlerFunc(s.handleSubscribe)

	// Preflight requests never reach the method-bound routes above.
	r.Methods(http.MethodOptions).PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if s.cfg.Server.StaticDir != "" {
		app := routes.App
		r.PathPrefix(app).Handler(http.StripPrefix(app, http.FileServer(http.Dir(s.cfg.Server.StaticDir))))
		r.Path("/").Handler(http.RedirectHandler(app, http.StatusFound))
	}

	return r
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"method", r.Method,
			"url", r.URL.Path,
			"status", m.Code,
			"duration", m.Duration.Round(time.Microsecond),
		)
	})
}

// The browser client is typically served from a different origin
// during development, so the API answers cross-origin requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
