package chat

import (
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}
	userID := "usr_abc"
	sessionID := "sess_1"

	r.Register(userID, sessionID, conn)

	active := r.GetActive(userID, sessionID)
	if active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	conn := &websocket.Conn{}
	userID := "usr_abc"
	sessionID := "sess_1"

	r.Register(userID, sessionID, conn)
	r.Unregister(userID, sessionID, conn)

	active := r.GetActive(userID, sessionID)
	if active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
}

func TestRegistry_UnregisterStale(t *testing.T) {
	r := NewRegistry()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}
	userID := "usr_abc"
	session1 := "sess_1"
	session2 := "sess_2"

	r.Register(userID, session1, conn1)

	// A second conversation should remain active when the first unregisters.
	r.Register(userID, session2, conn2)

	r.Unregister(userID, session1, conn1)

	active := r.GetActive(userID, session2)
	if active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	userID := "usr_concurrent"

	go func() {
		for i := 0; i < 1000; i++ {
			r.Register(userID, "sess_"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()

	go func() {
		for i := 0; i < 1000; i++ {
			r.GetActive(userID, "sess_"+strconv.Itoa(i))
		}
	}()

	time.Sleep(100 * time.Millisecond)
}

