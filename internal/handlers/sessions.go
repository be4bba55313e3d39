package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/annotator/internal/session"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.List()
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	views := make([]summaryView, 0, len(summaries))
	for _, s := range summaries {
		_, open := h.registry.Get(s.Key)
		views = append(views, summaryView{Summary: s, Percent: s.Percent(), Open: open})
	}
	h.writeJSON(w, views)
}

func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name string `json:"name"`
		Root string `json:"root"`
	}
	if !h.decode(w, r, &request) {
		return
	}
	if request.Name == "" || request.Root == "" {
		h.writeError(w, "name and root are required", http.StatusBadRequest)
		return
	}
	key, err := storage.Key(request.Name)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.openMu.Lock()
	defer h.openMu.Unlock()

	if _, open := h.registry.Get(key); open {
		h.writeFailure(w, session.ErrSessionExists)
		return
	}
	runner, err := session.Start(h.deps, request.Name, request.Root)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.registry.Add(key, runner)

	w.Header().Set("Location", sessionURL(request.Name))
	h.writeJSONStatus(w, http.StatusCreated, newStateView(runner))
}

func (h *Handler) HandleResumeSession(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyOrError(w, r)
	if !ok {
		return
	}

	h.openMu.Lock()
	defer h.openMu.Unlock()

	if a, open := h.registry.Get(key); open {
		a.mu.Lock()
		defer a.mu.Unlock()
		h.writeJSON(w, newStateView(a.runner))
		return
	}
	runner, err := session.Resume(h.deps, r.PathValue("name"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.registry.Add(key, runner)
	h.writeJSON(w, newStateView(runner))
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	h.withRunner(w, r, func(runner *session.Runner) {
		h.writeJSON(w, newStateView(runner))
	})
}

// HandleHome closes the open runner, saving it unless the body says
// {"save": false}
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	request := struct {
		Save bool `json:"save"`
	}{Save: true}
	if !h.decode(w, r, &request) {
		return
	}
	key, ok := h.keyOrError(w, r)
	if !ok {
		return
	}

	h.withRunner(w, r, func(runner *session.Runner) {
		err := runner.Home(request.Save)
		h.registry.Delete(key)
		if err != nil {
			h.writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// HandleDeleteSession discards the saved document and any open runner
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	key, ok := h.keyOrError(w, r)
	if !ok {
		return
	}

	h.openMu.Lock()
	defer h.openMu.Unlock()

	a, open := h.registry.Get(key)
	if open {
		a.mu.Lock()
		_ = a.runner.Home(false)
		a.mu.Unlock()
		h.registry.Delete(key)
	}

	exists, err := h.store.Exists(r.PathValue("name"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if !exists && !open {
		h.writeFailure(w, storage.ErrNotFound)
		return
	}
	if err := h.store.Delete(r.PathValue("name")); err != nil {
		h.writeFailure(w, err)
		return
	}
	slog.Info("Session deleted", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

// CloseAll saves and closes every open runner
func (h *Handler) CloseAll() {
	for _, key := range h.registry.Keys() {
		a, ok := h.registry.Get(key)
		if !ok {
			continue
		}
		a.mu.Lock()
		if err := a.runner.Home(true); err != nil && !errors.Is(err, session.ErrClosed) {
			slog.Error("Failed to save session on shutdown", "key", key, "err", err)
		}
		a.mu.Unlock()
		h.registry.Delete(key)
	}
}
