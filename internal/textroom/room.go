// Package textroom implements short-lived shared text pads addressed by a
// six-letter code. The last write wins and every write is pushed to the
// room's subscribers.
package textroom

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown or expired rooms.
	ErrNotFound = errors.New("textroom: room not found")
	// ErrConflict is returned when a generated code is already taken.
	ErrConflict = errors.New("textroom: code already in use")
	// ErrTooLarge is returned when content exceeds the configured cap.
	ErrTooLarge = errors.New("textroom: content too large")
)

// Room is one shared text pad.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists rooms.
type Store interface {
	Create(ctx context.Context, r *Room) error
	// Get returns a room that has not expired at now.
	Get(ctx context.Context, code string, now time.Time) (*Room, error)
	// UpdateContent replaces the content of a live room.
	UpdateContent(ctx context.Context, code, content string, now time.Time) (*Room, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
