package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/ops"
	"github.com/pensum-app/pensum/internal/session"
	"github.com/pensum-app/pensum/internal/store"
)

// Handlers contains the HTTP route handlers.
type Handlers struct {
	store    store.Store
	registry *session.Registry
	cfg      *config.Config
	version  string
}

type ctxKey int

const userKey ctxKey = iota

// requireUser rejects requests without the user header and stores the
// trimmed id in the request context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			renderError(w, errors.NewUnauthenticated())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

// sessionInput addresses the session named by the route and user header.
func sessionInput(r *http.Request) ops.SessionInput {
	userID, _ := r.Context().Value(userKey).(string)
	return ops.SessionInput{UserID: userID, TopicID: chi.URLParam(r, "topicID")}
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": h.version})
}

// HandleTopics handles GET /topics.
func (h *Handlers) HandleTopics(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListTopics(r.Context(), h.store)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

type importRequest struct {
	Path string `json:"path"`
}

// HandleImport handles POST /topics/import. Validation problems in the file
// come back as 422 with the per-question errors.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[importRequest](r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.Import(r.Context(), h.store, h.cfg, ops.ImportInput{Path: req.Path})
	if err != nil {
		renderError(w, err)
		return
	}
	if len(result.Errors) > 0 {
		renderJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	renderJSON(w, http.StatusCreated, result)
}

// HandleLoad handles POST /sessions/{topicID}: start or restart a session.
func (h *Handlers) HandleLoad(w http.ResponseWriter, r *http.Request) {
	result, err := ops.LoadSession(r.Context(), h.registry, sessionInput(r))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleNext handles GET /sessions/{topicID}/next.
func (h *Handlers) HandleNext(w http.ResponseWriter, r *http.Request) {
	result, err := ops.NextCard(r.Context(), h.registry, sessionInput(r))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleStats handles GET /sessions/{topicID}/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	result, err := ops.SessionStats(r.Context(), h.registry.Engine(), sessionInput(r))
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

type gradeRequest struct {
	QuestionID string `json:"question_id"`
	Rating     string `json:"rating"`
}

// HandleGrade handles POST /sessions/{topicID}/grade.
func (h *Handlers) HandleGrade(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[gradeRequest](r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.GradeCard(r.Context(), h.registry, ops.GradeInput{
		SessionInput: sessionInput(r),
		QuestionID:   req.QuestionID,
		Rating:       req.Rating,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

type notesRequest struct {
	QuestionID string `json:"question_id"`
	Notes      string `json:"notes"`
}

// HandleNotes handles PUT /sessions/{topicID}/notes.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[notesRequest](r)
	if err != nil {
		renderError(w, err)
		return
	}

	result, err := ops.UpdateNotes(r.Context(), h.registry, ops.NotesInput{
		SessionInput: sessionInput(r),
		QuestionID:   req.QuestionID,
		Notes:        req.Notes,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}
