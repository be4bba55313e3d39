package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/annotator/internal/session"
)

// target picks the request index, defaulting to the cursor
func target(runner *session.Runner, index *int) int {
	if index != nil {
		return *index
	}
	return runner.Machine().Cursor()
}

func (h *Handler) HandleLabel(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Index *int   `json:"index"`
		Label string `json:"label"`
	}
	if !h.decode(w, r, &request) {
		return
	}

	h.withRunner(w, r, func(runner *session.Runner) {
		if err := runner.Label(target(runner, request.Index), request.Label); err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, newStateView(runner))
	})
}

func (h *Handler) HandleIgnore(w http.ResponseWriter, r *http.Request) {
	request := struct {
		Index   *int `json:"index"`
		Ignored bool `json:"ignored"`
	}{Ignored: true}
	if !h.decode(w, r, &request) {
		return
	}

	h.withRunner(w, r, func(runner *session.Runner) {
		if err := runner.Ignore(target(runner, request.Index), request.Ignored); err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, newStateView(runner))
	})
}

func (h *Handler) HandleComment(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Index   *int   `json:"index"`
		Comment string `json:"comment"`
	}
	if !h.decode(w, r, &request) {
		return
	}

	h.withRunner(w, r, func(runner *session.Runner) {
		if err := runner.Comment(target(runner, request.Index), request.Comment); err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, newStateView(runner))
	})
}

// HandleNext advances the cursor. Passing the last target runs the
// completion step, whose outcome is part of the returned state.
func (h *Handler) HandleNext(w http.ResponseWriter, r *http.Request) {
	h.withRunner(w, r, func(runner *session.Runner) {
		done, err := runner.Next()
		if err != nil {
			h.writeFailure(w, err)
			return
		}
		if done && !runner.Finished() {
			if _, err := runner.Finish(r.Context()); err != nil {
				h.writeFailure(w, err)
				return
			}
		}
		h.writeJSON(w, newStateView(runner))
	})
}

func (h *Handler) HandleBack(w http.ResponseWriter, r *http.Request) {
	h.withRunner(w, r, func(runner *session.Runner) {
		if err := runner.Back(); err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, newStateView(runner))
	})
}

func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	h.withRunner(w, r, func(runner *session.Runner) {
		if err := runner.Save(); err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, newStateView(runner))
	})
}

func (h *Handler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	h.withRunner(w, r, func(runner *session.Runner) {
		if _, err := runner.Finish(r.Context()); err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, newStateView(runner))
	})
}
