package client

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// retryDelay is the minimum spacing between attempts made by Retry.
var retryDelay = 500 * time.Millisecond

// Retry calls fn up to tries times and returns its first success. Every
// failed attempt except the last is passed to report with its 1-based
// attempt number; the last attempt's error is returned. Attempts are spaced
// by retryDelay, and Retry stops early when ctx is done.
func Retry[T any](ctx context.Context, tries int, fn func(context.Context) (T, error), report func(attempt int, err error)) (T, error) {
	limiter := rate.NewLimiter(rate.Every(retryDelay), 1)

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil || attempt >= tries {
			return v, err
		}
		if report != nil {
			report(attempt, err)
		}
	}
}
