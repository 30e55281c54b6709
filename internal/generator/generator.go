// Package generator adapts task prompts to an external code-generation
// service. It owns rate limiting, retry, and per-invocation workspace
// scratch directories; the concrete transport (HTTP by default, an
// optional Docker-backed runner) is selected by configuration.
package generator

import (
	"context"
	"time"
)

// FailureKind classifies why an invocation did not produce an artifact.
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureQuotaExceeded FailureKind = "quota_exceeded"
	FailureNetworkError FailureKind = "network_error"
	FailureTimeout      FailureKind = "timeout"
	FailureUpstream     FailureKind = "upstream"
)

// Failure describes a non-nil error returned by a Generator in terms of
// the closed failure-kind taxonomy, so callers can branch without
// parsing error strings.
type Failure struct {
	Kind       FailureKind
	RetryAfter time.Duration // meaningful only for FailureRateLimited
	Status     int           // meaningful only for FailureUpstream
	Body       string        // meaningful only for FailureUpstream
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return string(f.Kind) + ": " + f.Err.Error()
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure is worth a backoff-and-retry
// cycle rather than an immediate abort.
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case FailureRateLimited, FailureNetworkError, FailureTimeout:
		return true
	case FailureUpstream:
		return f.Status >= 500
	default:
		return false
	}
}

// Artifact is the raw output of a generator invocation, prior to any
// agent-specific parsing into a TaskResult.
type Artifact struct {
	Content   string
	Workspace string // scratch directory the artifact was produced in
}

// RateStatus reports the generator client's current token-bucket state.
type RateStatus struct {
	RequestsPerMinute int
	TokensAvailable   float64
}

// Generator is the capability set every concrete transport (HTTP,
// Docker-backed) must implement.
type Generator interface {
	// Execute runs prompt to completion in a fresh workspace derived
	// from the client's workspace root, returning the resulting
	// artifact or a *Failure.
	Execute(ctx context.Context, prompt string) (*Artifact, error)

	// Available reports whether the generator backend is currently
	// reachable, without consuming a rate-limit token.
	Available(ctx context.Context) bool

	// RateStatus reports current token-bucket occupancy for diagnostics.
	RateStatus() RateStatus
}
