// Package identity provides ID generation and request-context accessors.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

var idPattern = regexp.MustCompile(`^(usr|fav|sess)_[a-f0-9]{32}$`)

// NewID generates a random identifier with the given prefix,
// e.g. NewID("sess") -> "sess_3f2a…".
func NewID(prefix string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + "_" + hex.EncodeToString(buf), nil
}

// Valid reports whether id matches the generated ID shape.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// WithUser stores the authenticated user on the request context.
func WithUser(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, username)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}
