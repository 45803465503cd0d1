package chat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ZhenchongLi/oipromot/internal/optimizer"
	"github.com/ZhenchongLi/oipromot/internal/session"
)

type fakeBackend struct {
	err error
}

func (f *fakeBackend) Optimize(_ context.Context, input string) (*optimizer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &optimizer.Result{Text: "1. optimized: " + input, Latency: 3 * time.Millisecond}, nil
}

func (f *fakeBackend) Refine(_ context.Context, _, feedback string) (*optimizer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &optimizer.Result{Text: "1. refined: " + feedback, Latency: 3 * time.Millisecond}, nil
}

func dialTestServer(t *testing.T, backend session.Backend) (*websocket.Conn, context.Context) {
	t.Helper()

	sessions := session.NewManager(backend, nil, time.Hour)
	h := NewWebSocketHandler(sessions, NewRegistry(), "*", true)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, msg wsMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) wsMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return msg
}

func TestConversationRoundTrip(t *testing.T) {
	conn, ctx := dialTestServer(t, &fakeBackend{})

	sendFrame(t, ctx, conn, wsMessage{Type: "requirement", Content: "track project progress"})

	if msg := readFrame(t, ctx, conn); msg.Type != "processing" {
		t.Fatalf("Expected processing frame, got %s", msg.Type)
	}
	msg := readFrame(t, ctx, conn)
	if msg.Type != "ai_response" {
		t.Fatalf("Expected ai_response, got %s", msg.Type)
	}
	if msg.Content == "" {
		t.Error("Expected non-empty content")
	}

	// A second message on the same connection refines the previous result.
	sendFrame(t, ctx, conn, wsMessage{Type: "feedback", Content: "make it weekly"})
	if msg := readFrame(t, ctx, conn); msg.Type != "processing" {
		t.Fatalf("Expected processing frame, got %s", msg.Type)
	}
	if msg := readFrame(t, ctx, conn); msg.Type != "ai_response_refined" {
		t.Errorf("Expected ai_response_refined, got %s", msg.Type)
	}
}

func TestNewConversationResets(t *testing.T) {
	conn, ctx := dialTestServer(t, &fakeBackend{})

	sendFrame(t, ctx, conn, wsMessage{Type: "requirement", Content: "track progress"})
	readFrame(t, ctx, conn) // processing
	readFrame(t, ctx, conn) // ai_response

	sendFrame(t, ctx, conn, wsMessage{Type: "new_conversation"})
	if msg := readFrame(t, ctx, conn); msg.Type != "new_conversation" {
		t.Fatalf("Expected new_conversation ack, got %s", msg.Type)
	}

	// After reset the next message optimizes from scratch again.
	sendFrame(t, ctx, conn, wsMessage{Type: "requirement", Content: "another idea"})
	readFrame(t, ctx, conn) // processing
	if msg := readFrame(t, ctx, conn); msg.Type != "ai_response" {
		t.Errorf("Expected ai_response after reset, got %s", msg.Type)
	}
}

func TestFeedbackWithoutResultRejected(t *testing.T) {
	conn, ctx := dialTestServer(t, &fakeBackend{})

	sendFrame(t, ctx, conn, wsMessage{Type: "feedback", Content: "shorter"})
	readFrame(t, ctx, conn) // processing
	msg := readFrame(t, ctx, conn)
	if msg.Type != "error" {
		t.Fatalf("Expected error frame, got %s", msg.Type)
	}
}

func TestBackendErrorFrame(t *testing.T) {
	backend := &fakeBackend{err: &optimizer.Error{
		Kind:       optimizer.KindAuth,
		Message:    "API key rejected",
		Suggestion: "check API_KEY",
	}}
	conn, ctx := dialTestServer(t, backend)

	sendFrame(t, ctx, conn, wsMessage{Type: "requirement", Content: "track progress"})
	readFrame(t, ctx, conn) // processing
	msg := readFrame(t, ctx, conn)
	if msg.Type != "error" || msg.ErrorKind != "auth" {
		t.Errorf("Unexpected error frame: %+v", msg)
	}
	if msg.Suggestion == "" {
		t.Error("Expected a remediation suggestion")
	}
}

func TestPingPong(t *testing.T) {
	conn, ctx := dialTestServer(t, &fakeBackend{})
	sendFrame(t, ctx, conn, wsMessage{Type: "ping"})
	if msg := readFrame(t, ctx, conn); msg.Type != "pong" {
		t.Errorf("Expected pong, got %s", msg.Type)
	}
}

func TestErrorFrameTransitionMessage(t *testing.T) {
	frame := errorFrame(session.ErrInvalidTransition)
	if frame.Type != "error" {
		t.Errorf("Expected type=error, got %s", frame.Type)
	}
	if frame.Content == "" || frame.Content == session.ErrInvalidTransition.Error() {
		t.Errorf("Expected user-facing explanation, got %q", frame.Content)
	}
}
