package textroom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/password"
)

const (
	// CodeLength is the length of every room code.
	CodeLength = 6

	createAttempts = 5
)

// Options configure a Service.
type Options struct {
	TTL      time.Duration
	MaxBytes int
	Now      func() time.Time
	Logger   *zap.Logger
}

// Service is the room API used by the HTTP layer.
type Service struct {
	store  Store
	broker Broker
	opts   Options
	log    *zap.Logger
}

// NewService wires a service.
func NewService(store Store, broker Broker, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 64 * 1024
	}
	return &Service{store: store, broker: broker, opts: opts, log: opts.Logger}
}

// Create opens an empty room under a fresh code.
func (s *Service) Create(ctx context.Context) (*Room, error) {
	for i := 0; i < createAttempts; i++ {
		code, err := password.GenerateCode(CodeLength)
		if err != nil {
			return nil, err
		}
		now := s.opts.Now().UTC()
		r := &Room{
			ID:        uuid.New(),
			Code:      code,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(s.opts.TTL),
		}
		err = s.store.Create(ctx, r)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.Info("room created", zap.String("room", code))
		return r, nil
	}
	return nil, fmt.Errorf("no free room code after %d attempts", createAttempts)
}

// Get returns a live room.
func (s *Service) Get(ctx context.Context, code string) (*Room, error) {
	if !ValidCode(code) {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, code, s.opts.Now().UTC())
}

// Update replaces the room content and notifies subscribers.
func (s *Service) Update(ctx context.Context, code, content string) (*Room, error) {
	if !ValidCode(code) {
		return nil, ErrNotFound
	}
	if len(content) > s.opts.MaxBytes {
		return nil, ErrTooLarge
	}
	r, err := s.store.UpdateContent(ctx, code, content, s.opts.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.broker.Publish(ctx, code); err != nil {
		s.log.Warn("room publish failed", zap.String("room", code), zap.Error(err))
	}
	return r, nil
}

// Subscribe returns a change signal for code and its cancel func.
func (s *Service) Subscribe(code string) (<-chan struct{}, func()) {
	return s.broker.Subscribe(code)
}

// PurgeExpired deletes rooms past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) error {
	n, err := s.store.DeleteExpired(ctx, s.opts.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("expired rooms purged", zap.Int64("rooms", n))
	}
	return nil
}

// ValidCode reports whether code has the shape of a room code.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'a' || code[i] > 'z' {
			return false
		}
	}
	return true
}
