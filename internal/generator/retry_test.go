package generator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	artifact, err := withRetry(context.Background(), backoffPolicy{base: time.Millisecond, cap: time.Millisecond}, 3, func(attempt int) (*Artifact, error) {
		calls++
		return &Artifact{Content: "ok"}, nil
	})
	if err != nil || artifact.Content != "ok" {
		t.Fatalf("unexpected result: %+v, %v", artifact, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithRetryRetriesTransientFailure(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), backoffPolicy{base: time.Millisecond, cap: time.Millisecond}, 3, func(attempt int) (*Artifact, error) {
		calls++
		if calls < 3 {
			return nil, &Failure{Kind: FailureNetworkError, Err: errors.New("boom")}
		}
		return &Artifact{Content: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryAbortsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), backoffPolicy{base: time.Millisecond, cap: time.Millisecond}, 3, func(attempt int) (*Artifact, error) {
		calls++
		return nil, &Failure{Kind: FailureUnauthorized, Err: errors.New("nope")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected to abort after first non-retryable failure, got %d calls", calls)
	}
}

func TestWithRetryExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), backoffPolicy{base: time.Millisecond, cap: time.Millisecond}, 2, func(attempt int) (*Artifact, error) {
		calls++
		return nil, &Failure{Kind: FailureNetworkError, Err: errors.New("boom")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestBackoffPolicyRespectsCapAndJitterBounds(t *testing.T) {
	p := backoffPolicy{base: 100 * time.Millisecond, cap: 30 * time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.delay(attempt)
		if d <= 0 {
			t.Fatalf("expected positive delay, got %v", d)
		}
		if d > p.cap+p.cap/4 {
			t.Errorf("delay %v exceeds cap plus jitter for attempt %d", d, attempt)
		}
	}
}

func TestFailureRetryableClassification(t *testing.T) {
	cases := []struct {
		f    *Failure
		want bool
	}{
		{&Failure{Kind: FailureRateLimited}, true},
		{&Failure{Kind: FailureNetworkError}, true},
		{&Failure{Kind: FailureTimeout}, true},
		{&Failure{Kind: FailureUnauthorized}, false},
		{&Failure{Kind: FailureQuotaExceeded}, false},
		{&Failure{Kind: FailureUpstream, Status: 500}, true},
		{&Failure{Kind: FailureUpstream, Status: 400}, false},
	}
	for _, c := range cases {
		if got := c.f.Retryable(); got != c.want {
			t.Errorf("%+v: Retryable() = %v, want %v", c.f, got, c.want)
		}
	}
}
