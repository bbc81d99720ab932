package common

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter tracks API weight usage reported by the exchange and paces
// outgoing requests.
type RateLimiter struct {
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	pacer         *rate.Limiter
	slow          *rate.Limiter
	log           *zap.Logger
	mu            sync.RWMutex
}

// NewRateLimiter creates a new rate limiter.
// limit: maximum weight allowed per resetInterval (2400/min for futures).
// perSecond: steady request rate when usage is healthy.
func NewRateLimiter(limit int, resetInterval time.Duration, perSecond float64, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	if perSecond <= 0 {
		perSecond = 20
	}
	return &RateLimiter{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
		pacer:         rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
		slow:          rate.NewLimiter(rate.Every(time.Second), 1),
		log:           log,
	}
}

// Wait blocks until the next request may be sent. Above 90% usage it falls
// back to one request per second.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.ShouldDelay() {
		if err := rl.slow.Wait(ctx); err != nil {
			return err
		}
	}
	return rl.pacer.Wait(ctx)
}

// UpdateFromHeader updates the used weight from API response header.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}

	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.usedWeight = 0
		rl.lastReset = time.Now()
	}

	rl.usedWeight = weight

	percentage := float64(rl.usedWeight) / float64(rl.limit) * 100
	if percentage >= 95 {
		rl.log.Error("rate limit critical", zap.Int("used", rl.usedWeight), zap.Int("limit", rl.limit))
	} else if percentage >= 80 {
		rl.log.Warn("rate limit high", zap.Int("used", rl.usedWeight), zap.Int("limit", rl.limit))
	}
}

// Usage returns current usage information.
func (rl *RateLimiter) Usage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}

	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// ShouldDelay returns true if we should slow down the next request.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.Usage()
	return pct >= 90
}
