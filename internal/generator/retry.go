package generator

import (
	"context"
	"math/rand"
	"time"
)

// backoffPolicy implements exponential backoff with jitter: base
// duration doubles each attempt up to cap, then a uniform +/-25%
// jitter is applied.
type backoffPolicy struct {
	base time.Duration
	cap  time.Duration
}

func (b backoffPolicy) delay(attempt int) time.Duration {
	d := b.base << attempt
	if d <= 0 || d > b.cap {
		d = b.cap
	}
	jitter := 0.75 + rand.Float64()*0.5 // +/-25%
	return time.Duration(float64(d) * jitter)
}

// withRetry invokes fn up to maxAttempts times, sleeping between
// attempts per policy. It stops early when fn succeeds, when ctx is
// cancelled, or when the returned *Failure is not Retryable. A
// FailureRateLimited failure honors its RetryAfter hint over the
// computed backoff delay when larger.
func withRetry(ctx context.Context, policy backoffPolicy, maxAttempts int, fn func(attempt int) (*Artifact, error)) (*Artifact, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		artifact, err := fn(attempt)
		if err == nil {
			return artifact, nil
		}
		lastErr = err

		failure, ok := err.(*Failure)
		if !ok || !failure.Retryable() || attempt == maxAttempts-1 {
			return nil, err
		}

		delay := policy.delay(attempt)
		if failure.Kind == FailureRateLimited && failure.RetryAfter > delay {
			delay = failure.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
