// Package ratelimit counts failed login attempts in Redis using fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned once an identifier has used its attempt budget.
	ErrRateLimited = errors.New("ratelimit: too many attempts")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")
)

const keyPrefix = "odyssey:auth:login:"

// Config tunes the limiter.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Limiter tracks failed logins per identifier.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client. Zero values fall back
// to 5 attempts per 15 minutes.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	return &Limiter{redis: client, config: cfg}
}

// Check returns ErrRateLimited when identifier already has MaxAttempts
// failures inside the current window.
func (l *Limiter) Check(ctx context.Context, identifier string) error {
	count, err := l.redis.Get(ctx, keyPrefix+identifier).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Fail records one failed attempt and returns the count inside the window.
func (l *Limiter) Fail(ctx context.Context, identifier string) (int, error) {
	key := keyPrefix + identifier
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// The window starts with the first failure.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return int(count), nil
}

// Reset clears the counter after a successful login.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, keyPrefix+identifier).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
