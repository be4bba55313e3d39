// Package handlers exposes annotation sessions over a JSON HTTP API. Every
// state change goes through session.Runner; the handlers only translate
// requests and errors.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lehigh-university-libraries/annotator/internal/annotation"
	"github.com/lehigh-university-libraries/annotator/internal/scanner"
	"github.com/lehigh-university-libraries/annotator/internal/session"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

type Handler struct {
	store    *storage.FileStore
	deps     session.Deps
	registry *registry
	// serializes start and resume so two requests cannot open the same identity
	openMu sync.Mutex
}

// New builds a handler persisting through store. deps.Store is replaced by store.
func New(store *storage.FileStore, deps session.Deps) *Handler {
	deps.Store = store
	return &Handler{
		store:    store,
		deps:     deps,
		registry: newRegistry(),
	}
}

// Register adds the API routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("POST /api/sessions", h.HandleStartSession)
	mux.HandleFunc("GET /api/sessions/{name}", h.HandleSessionDetail)
	mux.HandleFunc("DELETE /api/sessions/{name}", h.HandleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{name}/resume", h.HandleResumeSession)
	mux.HandleFunc("POST /api/sessions/{name}/home", h.HandleHome)

	mux.HandleFunc("POST /api/sessions/{name}/label", h.HandleLabel)
	mux.HandleFunc("POST /api/sessions/{name}/ignore", h.HandleIgnore)
	mux.HandleFunc("POST /api/sessions/{name}/comment", h.HandleComment)
	mux.HandleFunc("POST /api/sessions/{name}/next", h.HandleNext)
	mux.HandleFunc("POST /api/sessions/{name}/back", h.HandleBack)
	mux.HandleFunc("POST /api/sessions/{name}/save", h.HandleSave)
	mux.HandleFunc("POST /api/sessions/{name}/finish", h.HandleFinish)

	mux.HandleFunc("GET /api/sessions/{name}/report", h.HandleReport)
	mux.HandleFunc("GET /api/sessions/{name}/targets/{idx}/{kind}", h.HandleTargetImage)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}

// writeFailure maps a runner error to a status code. Recoverable errors
// leave the session as it was and are reported inline.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	h.writeError(w, err.Error(), errorStatus(err))
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExists),
		errors.Is(err, session.ErrNotComplete),
		errors.Is(err, session.ErrAlreadyFinished):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, storage.ErrCorrupt),
		errors.Is(err, session.ErrNoTargets):
		return http.StatusUnprocessableEntity
	case errors.Is(err, annotation.ErrUnknownLabel),
		errors.Is(err, session.ErrOutOfRange),
		errors.Is(err, scanner.ErrRootNotFound),
		errors.Is(err, storage.ErrInvalidIdentity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Session helpers
func (h *Handler) keyOrError(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := storage.Key(r.PathValue("name"))
	if err != nil {
		h.writeFailure(w, err)
		return "", false
	}
	return key, true
}

// withRunner locks the open runner named in the path and calls fn
func (h *Handler) withRunner(w http.ResponseWriter, r *http.Request, fn func(*session.Runner)) {
	key, ok := h.keyOrError(w, r)
	if !ok {
		return
	}
	a, exists := h.registry.Get(key)
	if !exists {
		h.writeError(w, "Session not open; start or resume it first", http.StatusNotFound)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.runner)
}

// decode reads an optional JSON body into v; an empty body leaves v untouched
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
