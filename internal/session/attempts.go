package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAttempts counts failed sign-ins per email with a sliding expiry.
// The counter window doubles as the lockout window.
type RedisAttempts struct {
	client *redis.Client
	window time.Duration
}

func NewRedisAttempts(client *redis.Client, window time.Duration) *RedisAttempts {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisAttempts{client: client, window: window}
}

func (a *RedisAttempts) key(email string) string {
	return "attempts:" + email
}

// Bump records a failed attempt and returns the running count.
func (a *RedisAttempts) Bump(ctx context.Context, email string) (int, error) {
	count, err := a.client.Incr(ctx, a.key(email)).Result()
	if err != nil {
		return 0, fmt.Errorf("bump attempts: %w", err)
	}
	if err := a.client.Expire(ctx, a.key(email), a.window).Err(); err != nil {
		return 0, fmt.Errorf("expire attempts: %w", err)
	}
	return int(count), nil
}

// Count returns the running count without recording an attempt.
func (a *RedisAttempts) Count(ctx context.Context, email string) (int, error) {
	value, err := a.client.Get(ctx, a.key(email)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return value, nil
}

// Reset clears the counter after a successful sign-in.
func (a *RedisAttempts) Reset(ctx context.Context, email string) error {
	if err := a.client.Del(ctx, a.key(email)).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}
