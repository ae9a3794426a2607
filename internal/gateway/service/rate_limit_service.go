// Package service holds admission policies applied before a request reaches
// the execution core.
package service

import (
	"context"
	"time"

	"codeexec/internal/common/cache"
	pkgerrors "codeexec/pkg/errors"
	"codeexec/pkg/utils/logger"

	"go.uber.org/zap"
)

// DetailRetryAfter holds the time.Duration until the limited window resets.
const DetailRetryAfter = "retry_after"

// RateLimitService enforces fixed-window limits on shared Redis counters.
type RateLimitService struct {
	counter      cache.WindowCounter
	window       time.Duration
	redisTimeout time.Duration
	// failOpen admits requests when the counter store is unreachable.
	failOpen bool
}

func NewRateLimitService(counter cache.WindowCounter, window, redisTimeout time.Duration, failOpen bool) *RateLimitService {
	if redisTimeout <= 0 {
		redisTimeout = time.Second
	}
	return &RateLimitService{counter: counter, window: window, redisTimeout: redisTimeout, failOpen: failOpen}
}

// Allow counts one hit on key and rejects with TooManyRequests once the
// window holds more than max. max <= 0 disables the check.
func (s *RateLimitService) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if s.counter == nil {
		return s.storeDown(ctx, key, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit store is unavailable"))
	}
	if window <= 0 {
		window = s.window
	}

	callCtx, cancel := context.WithTimeout(ctx, s.redisTimeout)
	defer cancel()
	count, remaining, err := s.counter.IncrWindow(callCtx, key, window)
	if err != nil {
		return s.storeDown(ctx, key, pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed"))
	}
	if count > int64(max) {
		return pkgerrors.New(pkgerrors.TooManyRequests).
			WithDetail("key", key).
			WithDetail(DetailRetryAfter, remaining)
	}
	return nil
}

func (s *RateLimitService) storeDown(ctx context.Context, key string, err error) error {
	if !s.failOpen {
		return err
	}
	logger.Warn(ctx, "rate limit skipped", zap.String("key", key), zap.Error(err))
	return nil
}
