package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval bounds how often idle keys are dropped.
const DefaultSweepInterval = time.Hour

// Memory keeps the per-key timestamps in process. One instance is shared by
// every request; all access goes through mu.
type Memory struct {
	mu         sync.Mutex
	hits       map[string][]time.Time
	window     time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

// MemoryOption customizes a Memory limiter.
type MemoryOption func(*Memory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithWindow overrides the 24h quota period.
func WithWindow(window time.Duration) MemoryOption {
	return func(m *Memory) {
		if window > 0 {
			m.window = window
		}
	}
}

// WithSweepInterval overrides how often stale keys are purged.
func WithSweepInterval(every time.Duration) MemoryOption {
	return func(m *Memory) {
		if every > 0 {
			m.sweepEvery = every
		}
	}
}

// NewMemory builds an in-process limiter.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		hits:       map[string][]time.Time{},
		window:     DefaultWindow,
		sweepEvery: DefaultSweepInterval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.now()
	return m
}

func (m *Memory) CheckAndConsume(_ context.Context, key string, max int) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	m.maybeSweep(now, cutoff)

	kept := prune(m.hits[key], cutoff)
	if len(kept) >= max {
		m.store(key, kept)
		return Decision{Allowed: false, Remaining: 0, Limit: max}, nil
	}
	m.hits[key] = append(kept, now)
	return Decision{Allowed: true, Remaining: remaining(max, len(kept)), Limit: max}, nil
}

// Keys reports how many keys are currently tracked.
func (m *Memory) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

func (m *Memory) store(key string, kept []time.Time) {
	if len(kept) == 0 {
		delete(m.hits, key)
		return
	}
	m.hits[key] = kept
}

// maybeSweep must be called with mu held.
func (m *Memory) maybeSweep(now, cutoff time.Time) {
	if now.Sub(m.lastSweep) < m.sweepEvery {
		return
	}
	m.lastSweep = now
	for key, stamps := range m.hits {
		m.store(key, prune(stamps, cutoff))
	}
}

// prune drops timestamps at or before cutoff. stamps are in insertion order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
