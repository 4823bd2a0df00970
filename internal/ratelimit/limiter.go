package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sercop/facilitador-api/internal/config"
)

// attemptsTTL bounds how long a verification attempt counter survives
// without a reset.
const attemptsTTL = 24 * time.Hour

// Limiter keeps fixed-window request counters, resend cooldowns and
// verification attempt counters in Redis.
type Limiter struct {
	client   *redis.Client
	requests int64
	window   time.Duration
	cooldown time.Duration
}

func NewLimiter(client *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client:   client,
		requests: int64(cfg.Requests),
		window:   cfg.Window,
		cooldown: cfg.ResendCooldown,
	}
}

func getIPKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

func getCooldownKey(email string) string {
	return fmt.Sprintf("ratelimit:cooldown:%s", normalizeEmail(email))
}

func getAttemptsKey(email string) string {
	return fmt.Sprintf("verify_attempts:%s", normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// incr bumps key and sets its expiry in the same transaction. EXPIRE NX only
// applies to a key without a TTL, so the window starts on the first hit and a
// key that lost its expiry gets one back on the next hit.
func (l *Limiter) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		n = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n.Val(), nil
}

// Allow records a request from ip for purpose and reports whether it fits in
// the current window. A zero request budget disables the check.
func (l *Limiter) Allow(ctx context.Context, ip, purpose string) (bool, error) {
	if l.requests <= 0 {
		return true, nil
	}

	n, err := l.incr(ctx, getIPKey(ip, purpose), l.window)
	if err != nil {
		return false, fmt.Errorf("failed to record request: %w", err)
	}
	return n <= l.requests, nil
}

// CheckEmailCooldown reports whether a code was resent to email recently.
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	if l.cooldown <= 0 {
		return false, nil
	}

	n, err := l.client.Exists(ctx, getCooldownKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}
	return n > 0, nil
}

// SetEmailCooldown starts the resend cooldown for email.
func (l *Limiter) SetEmailCooldown(ctx context.Context, email string) error {
	if l.cooldown <= 0 {
		return nil
	}

	if err := l.client.Set(ctx, getCooldownKey(email), 1, l.cooldown).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

// RecordCodeAttempt counts a verification attempt for email and returns the
// running total.
func (l *Limiter) RecordCodeAttempt(ctx context.Context, email string) (int64, error) {
	n, err := l.incr(ctx, getAttemptsKey(email), attemptsTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to record verification attempt: %w", err)
	}
	return n, nil
}

// ResetCodeAttempts clears the attempt counter for email.
func (l *Limiter) ResetCodeAttempts(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, getAttemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to reset verification attempts: %w", err)
	}
	return nil
}
