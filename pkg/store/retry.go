package store

import (
	"context"
	"errors"
	"time"

	"github.com/plaenen/learnerstore/pkg/domain"
)

// RetryOnConflict runs fn until it succeeds, fails with an error other than an
// optimistic concurrency conflict, or maxRetries retries have been spent.
// fn receives the zero-based attempt number and must reload any state it depends on.
func RetryOnConflict(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn(attempt)
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		// Brief backoff before retry (10ms, 20ms, 40ms, ...)
		backoff := time.Duration(10*(1<<uint(attempt))) * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
