package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryCounter is a process-local Allower for single-instance deployments
// and tests. Budgets are not shared across instances.
type MemoryCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*bucket
	maxKeys int
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// NewMemoryCounter builds a counter holding at most maxKeys live buckets;
// zero means the default of 10000.
func NewMemoryCounter(maxKeys int) *MemoryCounter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryCounter{
		now:     time.Now,
		buckets: make(map[string]*bucket),
		maxKeys: maxKeys,
	}
}

// WithClock overrides the time source. Test hook.
func (m *MemoryCounter) WithClock(fn func() time.Time) *MemoryCounter {
	if fn != nil {
		m.now = fn
	}
	return m
}

func (m *MemoryCounter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if ok && now.After(b.windowEnd) {
		delete(m.buckets, key)
		ok = false
	}
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			m.gc(now)
		}
		if len(m.buckets) >= m.maxKeys {
			return Decision{}, errors.New("ratelimit: bucket capacity exceeded")
		}
		b = &bucket{windowEnd: now.Add(window)}
		m.buckets[key] = b
	}

	if b.count < limit {
		b.count++
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - b.count,
			ResetAt:   b.windowEnd,
		}, nil
	}
	return Decision{
		Allowed:   false,
		Limit:     limit,
		Remaining: 0,
		ResetAt:   b.windowEnd,
	}, nil
}

func (m *MemoryCounter) gc(now time.Time) {
	for key, b := range m.buckets {
		if now.After(b.windowEnd) {
			delete(m.buckets, key)
		}
	}
}
