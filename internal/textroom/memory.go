package textroom

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]Room
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Room)}
}

func (m *Memory) Create(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.Code]; ok {
		return ErrConflict
	}
	m.rooms[r.Code] = *r
	return nil
}

func (m *Memory) Get(_ context.Context, code string, now time.Time) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok || !r.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) UpdateContent(_ context.Context, code, content string, now time.Time) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok || !r.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	r.Content = content
	r.UpdatedAt = now
	m.rooms[code] = r
	return &r, nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for code, r := range m.rooms {
		if !r.ExpiresAt.After(now) {
			delete(m.rooms, code)
			n++
		}
	}
	return n, nil
}
