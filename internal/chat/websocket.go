package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/ZhenchongLi/oipromot/internal/identity"
	"github.com/ZhenchongLi/oipromot/internal/optimizer"
	"github.com/ZhenchongLi/oipromot/internal/session"
)

// wsMessage is the frame shape in both directions. Inbound types are
// "requirement", "feedback", "new_conversation" and "ping"; outbound types
// are "processing", "ai_response", "ai_response_refined", "error",
// "new_conversation" and "pong".
type wsMessage struct {
	Type         string  `json:"type"`
	Content      string  `json:"content,omitempty"`
	ResponseTime float64 `json:"response_time,omitempty"`
	Mode         string  `json:"mode,omitempty"`
	ErrorKind    string  `json:"error_kind,omitempty"`
	Suggestion   string  `json:"suggestion,omitempty"`
}

// WebSocketHandler upgrades HTTP requests and drives one conversation per
// connection.
type WebSocketHandler struct {
	sessions      *session.Manager
	registry      *Registry
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a WebSocket conversation handler.
func NewWebSocketHandler(sessions *session.Manager, registry *Registry, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:      sessions,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		userID = "anonymous"
	}
	slog.Info("WebSocket connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	sess, err := h.sessions.Create(userID)
	if err != nil {
		slog.Error("Failed to create session", "error", err, "user_id", userID)
		return
	}
	defer h.sessions.Delete(sess.ID)

	h.registry.Register(userID, sess.ID, ws)
	defer h.registry.Unregister(userID, sess.ID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, userID, sess.ID)
	slog.Info("Conversation ended", "user_id", userID, "session_id", sess.ID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.send(ws, wsMessage{Type: "error", Content: "invalid message"})
			continue
		}

		switch msg.Type {
		case "requirement", "feedback":
			h.handleTurn(ctx, ws, sessionID, msg)
		case "new_conversation":
			if err := h.sessions.Reset(sessionID); err != nil {
				slog.Warn("Failed to reset session", "error", err, "session_id", sessionID)
				continue
			}
			h.send(ws, wsMessage{Type: "new_conversation"})
		case "ping":
			h.send(ws, wsMessage{Type: "pong"})
		default:
			h.send(ws, wsMessage{Type: "error", Content: "unknown message type: " + msg.Type})
		}
	}
}

func (h *WebSocketHandler) handleTurn(ctx context.Context, ws *websocket.Conn, sessionID string, msg wsMessage) {
	if strings.TrimSpace(msg.Content) == "" {
		h.send(ws, wsMessage{Type: "error", Content: "content is required"})
		return
	}

	h.send(ws, wsMessage{Type: "processing", Content: "Optimizing requirement..."})

	var res *session.TurnResult
	var err error
	if msg.Type == "feedback" {
		res, err = h.sessions.Feedback(ctx, sessionID, msg.Content)
	} else {
		res, err = h.sessions.Submit(ctx, sessionID, msg.Content)
	}
	if err != nil {
		h.send(ws, errorFrame(err))
		return
	}

	frame := wsMessage{
		Type:         "ai_response",
		Content:      res.Content,
		ResponseTime: res.Latency.Seconds(),
		Mode:         string(res.Mode),
	}
	if res.Refined {
		frame.Type = "ai_response_refined"
	}
	h.send(ws, frame)
}

func errorFrame(err error) wsMessage {
	frame := wsMessage{Type: "error", Content: err.Error()}
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		frame.Content = "no previous result to refine; send a requirement first"
	case errors.Is(err, session.ErrTurnInFlight):
		frame.Content = "a request is already being processed"
	case errors.Is(err, session.ErrSessionNotFound):
		frame.Content = "conversation expired; reconnect to start a new one"
	default:
		if oe, ok := optimizer.AsError(err); ok {
			frame.Content = oe.Message
			frame.ErrorKind = string(oe.Kind)
			frame.Suggestion = oe.Suggestion
			frame.ResponseTime = oe.Latency.Seconds()
		}
	}
	return frame
}

func (h *WebSocketHandler) send(ws *websocket.Conn, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal frame", "error", err)
		return
	}
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}
