package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle limits failed login attempts per (email, ip) using redis
// counters. The counter window starts at the first failure; a successful
// login clears it.
type Throttle struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewThrottle constructs a Throttle. limit and window fall back to
// 10 failures per 15 minutes when non-positive.
func NewThrottle(client *redis.Client, limit int64, window time.Duration) *Throttle {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Throttle{client: client, limit: limit, window: window}
}

func (t *Throttle) key(email, ip string) string {
	return fmt.Sprintf("login_fail:%s:%s", strings.ToLower(strings.TrimSpace(email)), ip)
}

// Allow reports whether another attempt is permitted.
func (t *Throttle) Allow(ctx context.Context, email, ip string) (bool, error) {
	count, err := t.client.Get(ctx, t.key(email, ip)).Int64()
	if err != nil {
		if err == redis.Nil {
			return true, nil
		}
		return true, err
	}
	return count < t.limit, nil
}

// RecordFailure increments the failure counter, starting the lockout window
// on the first failure.
func (t *Throttle) RecordFailure(ctx context.Context, email, ip string) error {
	key := t.key(email, ip)
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, t.window)
	_, err := pipe.Exec(ctx)
	return err
}

// Reset clears the failure counter after a successful login.
func (t *Throttle) Reset(ctx context.Context, email, ip string) error {
	return t.client.Del(ctx, t.key(email, ip)).Err()
}
