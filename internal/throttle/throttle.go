// Package throttle rejects messages from a sender that arrive within a
// cooldown window of the sender's last accepted message.
package throttle

import (
	"context"
	"sync"
	"time"
)

// DefaultCooldown is the minimum gap between two accepted messages of one sender.
const DefaultCooldown = 10 * time.Second

// Limiter decides whether a message keyed by sender may be processed.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, error)
}

// Key builds the limiter key for a sender on a page.
func Key(pageID, senderID string) string {
	return pageID + "." + senderID
}

// Memory is a per-process Limiter. It is not shared between instances, so it
// is only correct for a single-process deployment.
type Memory struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

// NewMemory creates an in-memory limiter.
func NewMemory(cooldown time.Duration) *Memory {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Memory{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

// Allow accepts key when it has no accepted message yet or the cooldown has
// elapsed since the last one. Only accepted calls move the window.
func (m *Memory) Allow(_ context.Context, key string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.last[key]; ok && now.Sub(last) < m.cooldown {
		return false, nil
	}
	m.last[key] = now
	return true, nil
}

// Sweep forgets senders whose cooldown has expired and returns how many were
// removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, last := range m.last {
		if now.Sub(last) >= m.cooldown {
			delete(m.last, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked senders.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}

// Run sweeps periodically until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
