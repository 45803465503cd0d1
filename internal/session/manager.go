// Package session implements the per-session conversation state machine:
// IDLE -> WAITING_FEEDBACK on a successful optimize call, refine loops in
// WAITING_FEEDBACK, any failure lands in ERROR, and a new conversation
// returns to IDLE from anywhere.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZhenchongLi/oipromot/internal/domain"
	"github.com/ZhenchongLi/oipromot/internal/identity"
	"github.com/ZhenchongLi/oipromot/internal/optimizer"
	"github.com/ZhenchongLi/oipromot/internal/turnlog"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTurnInFlight is returned when a session already has a turn running.
	// Concurrent submits are rejected, not queued.
	ErrTurnInFlight = errors.New("a turn is already in flight for this session")
	// ErrInvalidTransition is returned for operations the current state
	// does not permit; no backend call is made.
	ErrInvalidTransition = errors.New("operation not valid in current session state")
)

// Backend issues the actual optimize/refine calls.
type Backend interface {
	Optimize(ctx context.Context, input string) (*optimizer.Result, error)
	Refine(ctx context.Context, priorResult, feedback string) (*optimizer.Result, error)
}

// TurnRecorder receives completed turns for logging.
type TurnRecorder interface {
	Record(event turnlog.Event)
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Content string
	Latency time.Duration
	Mode    optimizer.Mode
	Refined bool
	State   domain.SessionState
}

type managed struct {
	mu      sync.Mutex // guards the session fields
	turnMu  sync.Mutex // held for the duration of one turn
	session domain.Session
}

// Manager owns the session registry. Sessions are independent; all
// coordination is per-session.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*managed

	backend  Backend
	recorder TurnRecorder
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a session manager. recorder may be nil.
func NewManager(backend Backend, recorder TurnRecorder, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*managed),
		backend:  backend,
		recorder: recorder,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new idle session for the user.
func (m *Manager) Create(userID string) (*domain.Session, error) {
	id, err := identity.NewID("sess")
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	now := m.now()
	s := domain.Session{
		ID:           id,
		UserID:       userID,
		State:        domain.StateIdle,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}

	m.mu.Lock()
	m.sessions[id] = &managed{session: s}
	m.mu.Unlock()

	slog.Info("session created", "session_id", id, "user_id", userID)
	return &s, nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(sessionID string) (*domain.Session, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	snapshot := ms.session
	ms.mu.Unlock()
	return &snapshot, nil
}

// Submit processes one user turn. In IDLE and ERROR the text is treated
// as a requirement; in WAITING_FEEDBACK it is treated as feedback on the
// stored result.
func (m *Manager) Submit(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return m.runTurn(ctx, ms, text, false)
}

// Feedback processes a feedback turn. Valid only in WAITING_FEEDBACK;
// any other state is an invalid transition and no backend call is made.
func (m *Manager) Feedback(ctx context.Context, sessionID, feedback string) (*TurnResult, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return m.runTurn(ctx, ms, feedback, true)
}

// Reset returns the session to IDLE and discards the stored result.
// Valid from any state.
func (m *Manager) Reset(sessionID string) error {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	ms.session.State = domain.StateIdle
	ms.session.LastResult = ""
	ms.session.ThinkingMode = false
	ms.session.UpdatedAt = m.now()
	ms.session.LastActiveAt = ms.session.UpdatedAt
	ms.mu.Unlock()

	slog.Info("session reset", "session_id", sessionID)
	return nil
}

// Delete removes the session from the registry.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) lookup(sessionID string) (*managed, error) {
	m.mu.RLock()
	ms, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

func (m *Manager) runTurn(ctx context.Context, ms *managed, text string, feedbackOnly bool) (*TurnResult, error) {
	// One in-flight turn per session; a second submit is rejected
	// deterministically rather than queued.
	if !ms.turnMu.TryLock() {
		return nil, ErrTurnInFlight
	}
	defer ms.turnMu.Unlock()

	// The optimize-vs-refine decision has to see the state the previous
	// turn left behind, so it is made only after the turn lock is held.
	ms.mu.Lock()
	state := ms.session.State
	prior := ms.session.LastResult
	sessionID := ms.session.ID
	userID := ms.session.UserID
	ms.session.LastActiveAt = m.now()
	ms.mu.Unlock()

	kind := domain.TurnOptimize
	if state == domain.StateWaitingFeedback {
		kind = domain.TurnRefine
	} else if feedbackOnly {
		return nil, fmt.Errorf("feedback in state %s: %w", state, ErrInvalidTransition)
	}

	var result *optimizer.Result
	var err error
	if kind == domain.TurnRefine {
		result, err = m.backend.Refine(ctx, prior, text)
	} else {
		result, err = m.backend.Optimize(ctx, text)
	}

	if err != nil {
		m.completeTurn(ms, "", false, domain.StateError)
		m.record(userID, sessionID, kind, text, nil, err)
		return nil, err
	}

	m.completeTurn(ms, result.Text, result.Thinking, domain.StateWaitingFeedback)
	m.record(userID, sessionID, kind, text, result, nil)

	return &TurnResult{
		Content: result.Text,
		Latency: result.Latency,
		Mode:    result.Mode(),
		Refined: kind == domain.TurnRefine,
		State:   domain.StateWaitingFeedback,
	}, nil
}

func (m *Manager) completeTurn(ms *managed, result string, thinking bool, state domain.SessionState) {
	ms.mu.Lock()
	ms.session.State = state
	if state == domain.StateWaitingFeedback {
		ms.session.LastResult = result
		ms.session.ThinkingMode = thinking
	}
	ms.session.UpdatedAt = m.now()
	ms.session.LastActiveAt = ms.session.UpdatedAt
	ms.mu.Unlock()
}

func (m *Manager) record(userID, sessionID string, kind domain.TurnKind, input string, result *optimizer.Result, err error) {
	if m.recorder == nil {
		return
	}

	event := turnlog.Event{
		Timestamp: m.now(),
		UserID:    userID,
		SessionID: sessionID,
		Kind:      string(kind),
		Input:     input,
	}
	if result != nil {
		event.Response = result.Text
		event.Mode = string(result.Mode())
		event.LatencyMs = result.Latency.Milliseconds()
	}
	if err != nil {
		if oe, ok := optimizer.AsError(err); ok {
			event.ErrorKind = string(oe.Kind)
			event.ErrorMsg = oe.Message
			event.LatencyMs = oe.Latency.Milliseconds()
		} else {
			event.ErrorKind = string(optimizer.KindUnknown)
			event.ErrorMsg = err.Error()
		}
	}
	m.recorder.Record(event)
}
