package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ZhenchongLi/oipromot/internal/identity"
	"github.com/ZhenchongLi/oipromot/internal/store"
)

// Middleware validates the bearer token and loads the user into the
// request context. Requests without a valid token get 401.
func Middleware(issuer *TokenIssuer, repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error": "missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			claims, err := issuer.Verify(token)
			if err != nil {
				http.Error(w, `{"error": "invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			// The token may outlive the account; confirm it still exists.
			user, err := repo.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				slog.Warn("token for unknown user", "user_id", claims.UserID, "error", err)
				http.Error(w, `{"error": "unknown user"}`, http.StatusUnauthorized)
				return
			}

			ctx := identity.WithUser(r.Context(), user.ID, user.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	// WebSocket clients cannot set headers; allow a query parameter.
	return r.URL.Query().Get("token")
}
