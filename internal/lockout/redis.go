package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sfd:"

// Redis shares attempt counters between service replicas.
type Redis struct {
	client *redis.Client
	opts   Options
	now    func() time.Time
}

// NewRedisClient builds a client with the service's timeouts.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts Options) *Redis {
	return &Redis{client: client, opts: opts, now: time.Now}
}

// incrWindow counts a failure and starts the window on the first one in a
// single step, so a counter never outlives its window.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func attemptsKey(key string) string { return keyPrefix + "attempts:" + key }
func lockKey(key string) string     { return keyPrefix + "lock:" + key }

func (r *Redis) Check(ctx context.Context, key string) (time.Time, error) {
	ttl, err := r.client.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("lockout check: %w", err)
	}
	// PTTL is negative for missing keys and keys without expiry.
	if ttl <= 0 {
		return time.Time{}, nil
	}
	return r.now().Add(ttl), nil
}

func (r *Redis) Failure(ctx context.Context, key string) (time.Time, error) {
	n, err := incrWindow.Run(ctx, r.client, []string{attemptsKey(key)}, r.opts.Window.Milliseconds()).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("lockout incr: %w", err)
	}
	if n < int64(r.opts.Max) {
		return time.Time{}, nil
	}

	until := r.now().Add(r.opts.Lockout)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lockKey(key), until.Unix(), r.opts.Lockout)
		pipe.Del(ctx, attemptsKey(key))
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("lockout lock: %w", err)
	}
	return until, nil
}

func (r *Redis) Success(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, attemptsKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}
