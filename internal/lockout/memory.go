package lockout

import (
	"context"
	"sync"
	"time"
)

type attempt struct {
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

// Memory keeps attempt counters in process. It is the default when no
// Redis address is configured.
type Memory struct {
	mu       sync.Mutex
	attempts map[string]*attempt
	opts     Options
	now      func() time.Time
}

// NewMemory returns an empty limiter. Call Run to sweep stale entries.
func NewMemory(opts Options) *Memory {
	return &Memory{
		attempts: make(map[string]*attempt),
		opts:     opts,
		now:      time.Now,
	}
}

// Check reports the unlock time when key is locked, or the zero time.
func (m *Memory) Check(_ context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[key]
	if !ok {
		return time.Time{}, nil
	}
	if !a.lockedUntil.IsZero() && m.now().Before(a.lockedUntil) {
		return a.lockedUntil, nil
	}
	return time.Time{}, nil
}

// Failure records a failed attempt and returns the unlock time when this
// attempt tripped the lock.
func (m *Memory) Failure(_ context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	a, ok := m.attempts[key]
	if !ok {
		a = &attempt{}
		m.attempts[key] = a
	}

	// Reset count if outside window or the previous lock has run out.
	if now.Sub(a.lastAttempt) > m.opts.Window || (!a.lockedUntil.IsZero() && !now.Before(a.lockedUntil)) {
		a.count = 0
		a.lockedUntil = time.Time{}
	}

	a.count++
	a.lastAttempt = now

	if a.count >= m.opts.Max {
		a.lockedUntil = now.Add(m.opts.Lockout)
		return a.lockedUntil, nil
	}
	return time.Time{}, nil
}

// Success clears the key.
func (m *Memory) Success(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
	return nil
}

// Sweep drops entries that are neither locked nor recent.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, a := range m.attempts {
		if (a.lockedUntil.IsZero() || now.After(a.lockedUntil)) &&
			now.Sub(a.lastAttempt) > 2*m.opts.Window {
			delete(m.attempts, key)
			removed++
		}
	}
	return removed
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
