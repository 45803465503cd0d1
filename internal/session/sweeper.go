package session

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically drops
// sessions inactive longer than the manager's TTL.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("session sweeper started", "interval", interval, "ttl", m.ttl)

		for {
			select {
			case <-ticker.C:
				if removed := m.sweepOnce(); removed > 0 {
					slog.Info("session sweeper removed expired sessions", "count", removed)
				}
			case <-ctx.Done():
				slog.Info("session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (m *Manager) sweepOnce() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, ms := range m.sessions {
		ms.mu.Lock()
		inactive := ms.session.Expired(m.now(), m.ttl)
		ms.mu.Unlock()
		if inactive {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
