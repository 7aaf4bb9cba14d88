package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/technikum29/t29-inventory-server/pkg/core"
)

type patchRequest struct {
	Author string          `json:"author"`
	Patch  json.RawMessage `json:"patch"`
}

type commitRequest struct {
	Author  string `json:"author"`
	Message string `json:"message"`
}

type discardRequest struct {
	Author string `json:"author"`
}

// handlePatch stages a JSON patch for the request's author and returns
// the previewed document.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	snap, err := s.svc.Submit(r.Context(), req.Author, req.Patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commitId": snap.CommitID,
		"preview":  snap.Document,
	})
}

// handleCommit turns the author's staged operations into one commit.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	commitID, doc, err := s.svc.Commit(r.Context(), req.Author, req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commitId":  commitID,
		"inventory": json.RawMessage(doc),
	})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	var req discardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if err := s.svc.Discard(r.Context(), req.Author); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

// handleLog returns the revision history, newest first. ?max_items
// bounds the page size.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	maxItems := 0
	if raw := r.URL.Query().Get("max_items"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "max_items must be a non-negative integer")
			return
		}
		maxItems = n
	}
	entries, err := s.svc.Log(r.Context(), maxItems)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleHead returns the committed document and its commit id.
func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.CurrentState(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commitId":  snap.CommitID,
		"inventory": json.RawMessage(snap.Document),
	})
}

// handleState reports component self-descriptions for operators.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		s.repo.ComponentType(): s.repo.State(),
		s.hub.ComponentType():  s.hub.State(),
	})
}

// writeServiceError maps service errors to HTTP statuses: client
// mistakes to 400, concurrency losses to 409, storage trouble to 502.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *core.ConflictError
	var storeErr *core.StoreError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"code":    "conflict",
			"message": conflict.Error(),
			"index":   conflict.Index,
			"op":      conflict.Op,
			"reason":  conflict.Reason,
		})
	case errors.Is(err, core.ErrWorkspaceBusy):
		writeError(w, http.StatusConflict, "workspace_busy", err.Error())
	case errors.Is(err, core.ErrInvalidAuthor),
		errors.Is(err, core.ErrMalformedPatch),
		errors.Is(err, core.ErrNothingStaged):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.As(err, &storeErr):
		s.logger.Error("store failure", "op", storeErr.Op, "error", storeErr.Err)
		writeError(w, http.StatusBadGateway, "store_unavailable", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
