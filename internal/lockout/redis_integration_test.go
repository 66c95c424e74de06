//go:build integration

package lockout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(res) })

	client := NewRedisClient(fmt.Sprintf("localhost:%s", res.GetPort("6379/tcp")), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, pool.Retry(func() error {
		return client.Ping(context.Background()).Err()
	}))
	return client
}

func TestRedis_LockCycle(t *testing.T) {
	ctx := context.Background()
	r := NewRedis(startRedis(t), Options{Max: 2, Window: time.Minute, Lockout: time.Minute})
	key := Key("p1", "10.0.0.1")

	until, err := r.Failure(ctx, key)
	require.NoError(t, err)
	assert.True(t, until.IsZero())

	until, err = r.Failure(ctx, key)
	require.NoError(t, err)
	assert.False(t, until.IsZero())

	locked, err := r.Check(ctx, key)
	require.NoError(t, err)
	assert.WithinDuration(t, until, locked, 2*time.Second)

	require.NoError(t, r.Success(ctx, key))
	locked, err = r.Check(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked.IsZero())
}

func TestRedis_FirstFailureStartsWindow(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	r := NewRedis(client, Options{Max: 5, Window: time.Minute, Lockout: time.Minute})
	key := Key("p2", "10.0.0.2")

	_, err := r.Failure(ctx, key)
	require.NoError(t, err)

	ttl, err := client.PTTL(ctx, attemptsKey(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	// Later failures inside the window keep the original expiry.
	_, err = r.Failure(ctx, key)
	require.NoError(t, err)
	n, err := client.Get(ctx, attemptsKey(key)).Int()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	ttl2, err := client.PTTL(ctx, attemptsKey(key)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl2, ttl)
}
