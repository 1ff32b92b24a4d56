package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a mutex-guarded fixed-window counter. Entries reset lazily on
// the first hit past resetAt; Sweep drops expired entries.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*window
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*window), now: time.Now}
}

func (m *Memory) Hit(_ context.Context, key string, p Policy) (Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.entries[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(p.Window)}
		m.entries[key] = w
		return Result{Allowed: true, Remaining: p.Max - 1, ResetAt: w.resetAt}, nil
	}

	if w.count >= p.Max {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Result{Allowed: true, Remaining: p.Max - w.count, ResetAt: w.resetAt}, nil
}

// Sweep removes entries whose window has ended and returns how many went.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, w := range m.entries {
		if now.After(w.resetAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Run sweeps every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
