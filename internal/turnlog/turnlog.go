// Package turnlog writes completed turns as NDJSON, one file per session,
// with an optional global stream. Writes are asynchronous behind a bounded
// queue so a slow disk never blocks a turn.
package turnlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZhenchongLi/oipromot/internal/config"
)

// Event is one logged turn.
type Event struct {
	Timestamp time.Time `json:"ts"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Input     string    `json:"input"`
	Response  string    `json:"response,omitempty"`
	Mode      string    `json:"mode"`
	LatencyMs int64     `json:"latency_ms"`
	ErrorKind string    `json:"error_kind,omitempty"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
}

// Logger asynchronously appends events to per-session NDJSON files.
type Logger struct {
	cfg    config.TurnLogConfig
	queue  chan Event
	done   chan struct{}
	closed sync.Once
	logger *slog.Logger
}

// New creates a Logger. A disabled config returns a no-op logger.
func New(cfg config.TurnLogConfig, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Logger{
		cfg:    cfg,
		done:   make(chan struct{}),
		logger: logger,
	}

	if !cfg.Enabled {
		close(l.done)
		return l, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create turn log directory: %w", err)
	}

	l.queue = make(chan Event, cfg.QueueSize)
	go l.run()
	return l, nil
}

// Record enqueues an event. Drops it when the queue is full or the
// logger is disabled.
func (l *Logger) Record(event Event) {
	if l.queue == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("turn log queue full, dropping event",
			"user_id", event.UserID, "session_id", event.SessionID)
	}
}

// Close drains the queue and stops the writer goroutine.
func (l *Logger) Close() error {
	l.closed.Do(func() {
		if l.queue != nil {
			close(l.queue)
		}
		<-l.done
	})
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
}

func (l *Logger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal turn event", "error", err)
		return
	}
	line = append(line, '\n')

	path := filepath.Join(l.cfg.Dir, sanitize(event.UserID), sanitize(event.SessionID)+".ndjson")
	if err := appendFile(path, line); err != nil {
		l.logger.Warn("failed to write turn log", "path", path, "error", err)
	}

	if l.cfg.GlobalEnabled {
		if err := appendFile(l.cfg.GlobalPath, line); err != nil {
			l.logger.Warn("failed to write global turn log", "path", l.cfg.GlobalPath, "error", err)
		}
	}
}

func appendFile(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.Write(line)
	return err
}

// sanitize keeps log paths inside the configured directory.
func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return filepath.Base(filepath.Clean(s))
}
