package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ZhenchongLi/oipromot/internal/domain"
	"github.com/ZhenchongLi/oipromot/internal/identity"
	"github.com/ZhenchongLi/oipromot/internal/optimizer"
	"github.com/ZhenchongLi/oipromot/internal/session"
)

type submitRequest struct {
	Text string `json:"text"`
	// Feedback forces the feedback transition; in IDLE it is rejected
	// instead of starting a new optimization.
	Feedback bool `json:"feedback,omitempty"`
}

type submitResponse struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	LatencyMs  int64  `json:"latency_ms"`
	Mode       string `json:"mode,omitempty"`
	Refined    bool   `json:"refined,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// RegisterSessionRoutes mounts the optimization session endpoints.
func (h *Handler) RegisterSessionRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/{sessionID}", h.handleGetSession)
		r.Post("/{sessionID}/messages", h.handleSubmit)
		r.Post("/{sessionID}/reset", h.handleReset)
	})
}

// requestUserID normalizes the context identity the same way session
// creation does, so unauthenticated surfaces stay self-consistent.
func requestUserID(r *http.Request) string {
	if userID := identity.UserIDFromContext(r.Context()); userID != "" {
		return userID
	}
	return "anonymous"
}

// ownedSession loads the session and rejects IDs that belong to another
// user. The caller sees the same 404 an unknown ID produces.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request, sessionID string) (*domain.Session, bool) {
	s, err := h.sessions.Get(sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	if s.UserID != requestUserID(r) {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(requestUserID(r))
	if err != nil {
		slog.Error("failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusCreated, s)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownedSession(w, r, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	JSON(w, http.StatusOK, s)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := h.ownedSession(w, r, sessionID); !ok {
		return
	}

	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	var res *session.TurnResult
	var err error
	if req.Feedback {
		res, err = h.sessions.Feedback(r.Context(), sessionID, req.Text)
	} else {
		res, err = h.sessions.Submit(r.Context(), sessionID, req.Text)
	}

	switch {
	case err == nil:
		JSON(w, http.StatusOK, submitResponse{
			Type:      "response",
			Content:   res.Content,
			LatencyMs: res.Latency.Milliseconds(),
			Mode:      string(res.Mode),
			Refined:   res.Refined,
		})
	case errors.Is(err, session.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrTurnInFlight):
		Error(w, http.StatusConflict, "a turn is already in flight for this session")
	case errors.Is(err, session.ErrInvalidTransition):
		Error(w, http.StatusUnprocessableEntity, "feedback requires a prior result; start with a requirement")
	default:
		// Backend failures are turn-level outcomes, not transport errors.
		resp := submitResponse{Type: "error", Content: err.Error()}
		if oe, ok := optimizer.AsError(err); ok {
			resp.Content = oe.Message
			resp.ErrorKind = string(oe.Kind)
			resp.Suggestion = oe.Suggestion
			resp.LatencyMs = oe.Latency.Milliseconds()
		}
		JSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := h.ownedSession(w, r, sessionID); !ok {
		return
	}

	err := h.sessions.Reset(sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"type": "new_conversation"})
}
