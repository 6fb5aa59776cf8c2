package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter counts windowed requests in Redis so budgets hold across
// service instances. One script invocation per check: increment, arm the TTL
// on first touch, and read the remaining window back.
type RedisCounter struct {
	client *redis.Client
	now    func() time.Time
}

var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// NewRedisCounter connects to Redis at addr.
func NewRedisCounter(addr, password string, db int) (*RedisCounter, error) {
	if addr == "" {
		return nil, errors.New("ratelimit: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCounter{client: client, now: time.Now}, nil
}

// Ping verifies connectivity, for readiness checks.
func (r *RedisCounter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisCounter) Close() error {
	return r.client.Close()
}

func (r *RedisCounter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	result, err := allowScript.Run(ctx, r.client, []string{key}, windowMillis).Result()
	if err != nil {
		return Decision{}, err
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, errors.New("ratelimit: unexpected redis response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, errors.New("ratelimit: invalid redis counter response")
	}
	ttlMillis, _ := values[1].(int64)
	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
