package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/config"
	"github.com/hide-yama/file-share/internal/lockout"
)

func TestMaxUploadBytes(t *testing.T) {
	cfg := config.Config{MaxProjectBytes: 10 << 20}
	assert.Equal(t, int64(11<<20), maxUploadBytes(cfg))
}

func TestNewAttemptPolicy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := config.Config{AttemptMax: 3, AttemptWindow: time.Minute, AttemptLockout: time.Minute}

	t.Run("memory without redis", func(t *testing.T) {
		p, closeFn := newAttemptPolicy(ctx, base, zap.NewNop())
		defer closeFn()
		_, ok := p.(*lockout.Memory)
		assert.True(t, ok)
	})

	t.Run("redis when configured", func(t *testing.T) {
		cfg := base
		cfg.RedisAddr = "127.0.0.1:6390"
		p, closeFn := newAttemptPolicy(ctx, cfg, zap.NewNop())
		defer closeFn()
		_, ok := p.(*lockout.Redis)
		require.True(t, ok)
	})
}
