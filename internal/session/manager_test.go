package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZhenchongLi/oipromot/internal/domain"
	"github.com/ZhenchongLi/oipromot/internal/optimizer"
	"github.com/ZhenchongLi/oipromot/internal/turnlog"
)

type fakeBackend struct {
	mu            sync.Mutex
	optimizeCalls int
	refineCalls   int
	lastInput     string
	lastPrior     string
	err           error
	block         chan struct{}
}

func (f *fakeBackend) Optimize(ctx context.Context, input string) (*optimizer.Result, error) {
	f.mu.Lock()
	f.optimizeCalls++
	f.lastInput = input
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &optimizer.Result{Text: "1. optimized: " + input, Latency: 10 * time.Millisecond}, nil
}

func (f *fakeBackend) Refine(ctx context.Context, prior, feedback string) (*optimizer.Result, error) {
	f.mu.Lock()
	f.refineCalls++
	f.lastPrior = prior
	f.lastInput = feedback
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &optimizer.Result{Text: "1. refined: " + feedback, Latency: 10 * time.Millisecond}, nil
}

type captureRecorder struct {
	mu     sync.Mutex
	events []turnlog.Event
}

func (c *captureRecorder) Record(event turnlog.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func mustCreate(t *testing.T, m *Manager) string {
	t.Helper()
	s, err := m.Create("usr_1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.State != domain.StateIdle {
		t.Fatalf("New session not idle: %s", s.State)
	}
	return s.ID
}

func TestSubmitRequirementMovesToWaitingFeedback(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	res, err := m.Submit(context.Background(), id, "我想要一个Excel表格来跟踪项目进度")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.State != domain.StateWaitingFeedback {
		t.Errorf("Expected WAITING_FEEDBACK, got %s", res.State)
	}
	if res.Refined {
		t.Error("First turn must not be a refinement")
	}

	s, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s.State != domain.StateWaitingFeedback {
		t.Errorf("Session state = %s, want WAITING_FEEDBACK", s.State)
	}
	if s.LastResult == "" {
		t.Error("Expected stored result after successful turn")
	}
	if backend.optimizeCalls != 1 || backend.refineCalls != 0 {
		t.Errorf("Unexpected backend calls: optimize=%d refine=%d", backend.optimizeCalls, backend.refineCalls)
	}
}

func TestSubmitInWaitingFeedbackRefines(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	if _, err := m.Submit(context.Background(), id, "build a tracker"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	res, err := m.Submit(context.Background(), id, "add a deadline column")
	if err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}
	if !res.Refined {
		t.Error("Expected second turn to refine")
	}
	if backend.lastPrior != "1. optimized: build a tracker" {
		t.Errorf("Refine did not receive prior result: %q", backend.lastPrior)
	}
}

func TestBackendFailureMovesToError(t *testing.T) {
	backend := &fakeBackend{err: &optimizer.Error{Kind: optimizer.KindConnection, Message: "cannot reach API server"}}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	_, err := m.Submit(context.Background(), id, "build a tracker")
	oe, ok := optimizer.AsError(err)
	if !ok || oe.Kind != optimizer.KindConnection {
		t.Fatalf("Expected classified connection error, got %v", err)
	}

	s, _ := m.Get(id)
	if s.State != domain.StateError {
		t.Errorf("Expected ERROR state, got %s", s.State)
	}
	if s.LastResult != "" {
		t.Errorf("Failed turn must not store a result, got %q", s.LastResult)
	}
}

func TestRetryFromErrorRecovers(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	if _, err := m.Submit(context.Background(), id, "build a tracker"); err == nil {
		t.Fatal("Expected first submit to fail")
	}

	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()

	res, err := m.Submit(context.Background(), id, "build a tracker")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if res.State != domain.StateWaitingFeedback {
		t.Errorf("Expected recovery to WAITING_FEEDBACK, got %s", res.State)
	}
	// Retry from ERROR re-optimizes, it does not refine.
	if backend.optimizeCalls != 2 || backend.refineCalls != 0 {
		t.Errorf("Unexpected backend calls: optimize=%d refine=%d", backend.optimizeCalls, backend.refineCalls)
	}
}

func TestFeedbackInIdleRejectedWithoutBackendCall(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	_, err := m.Feedback(context.Background(), id, "make it shorter")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if backend.optimizeCalls != 0 || backend.refineCalls != 0 {
		t.Error("Invalid transition must not reach the backend")
	}
}

func TestResetReturnsToIdleAndClearsResult(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	if _, err := m.Submit(context.Background(), id, "build a tracker"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := m.Reset(id); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	s, _ := m.Get(id)
	if s.State != domain.StateIdle {
		t.Errorf("Expected IDLE after reset, got %s", s.State)
	}
	if s.LastResult != "" {
		t.Errorf("Expected cleared result, got %q", s.LastResult)
	}
}

func TestResetFromErrorState(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	_, _ = m.Submit(context.Background(), id, "build a tracker")
	if err := m.Reset(id); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s, _ := m.Get(id)
	if s.State != domain.StateIdle {
		t.Errorf("Expected IDLE after reset from ERROR, got %s", s.State)
	}
}

func TestConcurrentSubmitRejectedDeterministically(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), id, "slow request")
		firstDone <- err
	}()

	// Wait for the first turn to take the in-flight guard.
	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		started := backend.optimizeCalls > 0
		backend.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := m.Submit(context.Background(), id, "second request")
	if !errors.Is(err, ErrTurnInFlight) {
		t.Errorf("Expected ErrTurnInFlight, got %v", err)
	}

	close(backend.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
}

func TestSubmitQueuedBehindCompletingTurnRefines(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	m := NewManager(backend, nil, time.Hour)
	id := mustCreate(t, m)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), id, "slow request")
		firstDone <- err
	}()

	// Wait for the first turn to take the in-flight guard.
	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		started := backend.optimizeCalls > 0
		backend.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// The second submit keeps retrying while the first turn is in
	// flight. Whichever attempt wins the guard must act on the state
	// the first turn left behind, i.e. refine, not re-optimize.
	type outcome struct {
		res *TurnResult
		err error
	}
	secondDone := make(chan outcome, 1)
	go func() {
		for {
			res, err := m.Submit(context.Background(), id, "make it shorter")
			if errors.Is(err, ErrTurnInFlight) {
				time.Sleep(time.Millisecond)
				continue
			}
			secondDone <- outcome{res, err}
			return
		}
	}()

	close(backend.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("First submit failed: %v", err)
	}

	second := <-secondDone
	if second.err != nil {
		t.Fatalf("Second submit failed: %v", second.err)
	}
	if !second.res.Refined {
		t.Error("Expected the queued submit to refine the first result")
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.optimizeCalls != 1 || backend.refineCalls != 1 {
		t.Errorf("Expected 1 optimize and 1 refine, got %d and %d",
			backend.optimizeCalls, backend.refineCalls)
	}
	if backend.lastPrior != "1. optimized: slow request" {
		t.Errorf("Refine did not see the first result: %q", backend.lastPrior)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, nil, time.Hour)
	id1 := mustCreate(t, m)
	id2 := mustCreate(t, m)

	if _, err := m.Submit(context.Background(), id1, "first session input"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	s2, _ := m.Get(id2)
	if s2.State != domain.StateIdle {
		t.Errorf("Other session disturbed: %s", s2.State)
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	m := NewManager(&fakeBackend{}, nil, time.Hour)
	if _, err := m.Submit(context.Background(), "sess_missing", "text"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Reset("sess_missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestTurnsAreRecorded(t *testing.T) {
	backend := &fakeBackend{}
	rec := &captureRecorder{}
	m := NewManager(backend, rec, time.Hour)
	id := mustCreate(t, m)

	if _, err := m.Submit(context.Background(), id, "build a tracker"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 {
		t.Fatalf("Expected 1 recorded event, got %d", len(rec.events))
	}
	if rec.events[0].Kind != string(domain.TurnOptimize) {
		t.Errorf("Unexpected event kind: %s", rec.events[0].Kind)
	}
	if rec.events[0].Response == "" {
		t.Error("Expected recorded response")
	}
}

func TestSweeperRemovesExpiredSessions(t *testing.T) {
	backend := &fakeBackend{}
	m := NewManager(backend, nil, 10*time.Minute)
	id := mustCreate(t, m)
	_ = mustCreate(t, m)

	// Age one session past the TTL.
	m.mu.Lock()
	ms := m.sessions[id]
	m.mu.Unlock()
	ms.mu.Lock()
	ms.session.LastActiveAt = time.Now().Add(-time.Hour)
	ms.mu.Unlock()

	if removed := m.sweepOnce(); removed != 1 {
		t.Errorf("Expected 1 removed session, got %d", removed)
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 surviving session, got %d", m.Len())
	}
	if _, err := m.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected expired session gone, got %v", err)
	}
}
