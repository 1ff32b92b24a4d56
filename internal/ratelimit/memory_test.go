package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMemoryWithClock() (*Memory, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.now = c.Now
	return m, c
}

func TestMemory_AllowsUpToMaxThenRejects(t *testing.T) {
	m, c := newMemoryWithClock()
	ctx := context.Background()
	p := Policy{Max: 5, Window: 10 * time.Minute}

	for i := 0; i < 5; i++ {
		res, err := m.Hit(ctx, "k", p)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i+1)
		assert.Equal(t, 5-i-1, res.Remaining)
	}

	res, err := m.Hit(ctx, "k", p)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, c.Now().Add(10*time.Minute), res.ResetAt)
}

func TestMemory_WindowResetsLazily(t *testing.T) {
	m, c := newMemoryWithClock()
	ctx := context.Background()
	p := Policy{Max: 1, Window: time.Minute}

	res, _ := m.Hit(ctx, "k", p)
	require.True(t, res.Allowed)
	res, _ = m.Hit(ctx, "k", p)
	require.False(t, res.Allowed)

	c.Advance(time.Minute + time.Millisecond)

	res, _ = m.Hit(ctx, "k", p)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	m, _ := newMemoryWithClock()
	ctx := context.Background()
	p := Policy{Max: 1, Window: time.Minute}

	res, _ := m.Hit(ctx, Key("1.1.1.1", "alice"), p)
	assert.True(t, res.Allowed)
	res, _ = m.Hit(ctx, Key("1.1.1.1", "bob"), p)
	assert.True(t, res.Allowed)
	res, _ = m.Hit(ctx, Key("2.2.2.2", "alice"), p)
	assert.True(t, res.Allowed)
	res, _ = m.Hit(ctx, Key("1.1.1.1", "alice"), p)
	assert.False(t, res.Allowed)
}

func TestMemory_Sweep(t *testing.T) {
	m, c := newMemoryWithClock()
	ctx := context.Background()

	_, _ = m.Hit(ctx, "short", Policy{Max: 5, Window: time.Minute})
	_, _ = m.Hit(ctx, "long", Policy{Max: 5, Window: time.Hour})
	require.Equal(t, 2, m.Len())

	c.Advance(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestMemory_ConcurrentHitsNeverExceedMax(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p := Policy{Max: 10, Window: time.Minute}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := m.Hit(ctx, "k", p)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
		if i%10 == 0 {
			go m.Sweep()
		}
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestMemory_RunStopsOnCancel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
