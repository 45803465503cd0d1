package domain

import (
	"time"
)

// SessionState is the conversation state of an optimization session.
type SessionState string

const (
	// StateIdle means no requirement has been optimized yet.
	StateIdle SessionState = "IDLE"
	// StateWaitingFeedback means the last optimize/refine call succeeded
	// and the session holds a result awaiting user feedback.
	StateWaitingFeedback SessionState = "WAITING_FEEDBACK"
	// StateError means the last turn failed; recoverable by a retried
	// requirement or a new conversation.
	StateError SessionState = "ERROR"
)

// Session is a single user's ongoing multi-turn optimization conversation.
type Session struct {
	ID           string       `json:"id"`
	UserID       string       `json:"-"`
	State        SessionState `json:"state"`
	LastResult   string       `json:"last_result,omitempty"`
	ThinkingMode bool         `json:"thinking_mode"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastActiveAt time.Time    `json:"last_active_at"`
}

// Expired reports whether the session has been inactive longer than
// ttl as of now.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActiveAt) > ttl
}
