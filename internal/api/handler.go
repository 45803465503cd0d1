// Package api exposes the HTTP surface: auth, sessions, favorites and health.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ZhenchongLi/oipromot/internal/auth"
	"github.com/ZhenchongLi/oipromot/internal/session"
	"github.com/ZhenchongLi/oipromot/internal/store"
)

// maxRequestBodySize caps request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler provides common handler dependencies.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	issuer   *auth.TokenIssuer
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager, issuer *auth.TokenIssuer) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		issuer:   issuer,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a bounded JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}
