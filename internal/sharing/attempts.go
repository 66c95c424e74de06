package sharing

import (
	"context"

	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/lockout"
)

// attemptGuard applies an optional AttemptPolicy to every password check.
// Policy errors are logged and the check goes ahead.
type attemptGuard struct {
	policy AttemptPolicy
	log    *zap.Logger
}

func (a attemptGuard) key(projectID, remoteAddr string) string {
	return lockout.Key(projectID, remoteAddr)
}

// check returns a *LockedError while key is locked.
func (a attemptGuard) check(ctx context.Context, key string) error {
	if a.policy == nil {
		return nil
	}
	until, err := a.policy.Check(ctx, key)
	if err != nil {
		a.log.Warn("attempt policy check failed", zap.Error(err))
		return nil
	}
	if !until.IsZero() {
		return &LockedError{Until: until}
	}
	return nil
}

func (a attemptGuard) failure(ctx context.Context, key string) {
	if a.policy == nil {
		return
	}
	until, err := a.policy.Failure(ctx, key)
	if err != nil {
		a.log.Warn("attempt policy update failed", zap.Error(err))
		return
	}
	if !until.IsZero() {
		a.log.Warn("access locked", zap.String("key", key), zap.Time("until", until))
	}
}

func (a attemptGuard) success(ctx context.Context, key string) {
	if a.policy == nil {
		return
	}
	if err := a.policy.Success(ctx, key); err != nil {
		a.log.Warn("attempt policy reset failed", zap.Error(err))
	}
}
