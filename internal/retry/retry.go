// Package retry implements bounded retries with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// maxDelay caps the backoff so a high attempt budget cannot stretch a
// single call into minutes.
const maxDelay = 30 * time.Second

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops immediately and returns err as-is.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do invokes fn up to maxAttempts times. Between attempts it sleeps for an
// exponentially growing delay starting at baseDelay, with up to 25% random
// jitter either way. It returns early on success, on a Permanent error, or
// when ctx is done. The returned error is fn's last error, unwrapped when
// permanent.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(lastErr, &pe) {
			return pe.Err
		}
		if attempt == maxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(baseDelay, attempt)):
		}
	}
}

// backoff computes the sleep before the next attempt: baseDelay doubled per
// completed attempt, jittered, capped at maxDelay.
func backoff(baseDelay time.Duration, attempt int) time.Duration {
	delay := baseDelay << (attempt - 1)
	if delay <= 0 || delay > maxDelay {
		delay = maxDelay
	}
	jitter := delay / 4
	if jitter > 0 {
		delay = delay - jitter + rand.N(2*jitter)
	}
	return delay
}
