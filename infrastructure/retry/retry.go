// Package retry provides one bounded retry-with-jitter policy for outbound calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

var (
	// ErrMaxAttemptsExceeded wraps the last error once the policy gives up.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when ctx ends while waiting between attempts.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Policy retries fn up to MaxAttempts times, sleeping a uniformly random
// duration in [MinBackoff, MaxBackoff] between attempts.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MinBackoff  time.Duration `yaml:"min_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	// IsRetryable decides whether an error is worth another attempt.
	// Nil means DefaultIsRetryable.
	IsRetryable func(error) bool `yaml:"-"`

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default policy values. The backoff range matches the 10-30s waits used
// for rate-limited LLM calls.
const (
	DefaultMaxAttempts = 3
	DefaultMinBackoff  = 10 * time.Second
	DefaultMaxBackoff  = 30 * time.Second
)

// DefaultPolicy returns the policy applied when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		MinBackoff:  DefaultMinBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// SetDefaults fills unset fields.
func (p *Policy) SetDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = DefaultMinBackoff
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = p.MinBackoff
	}
}

// Backoff returns the jittered wait before the next attempt.
func (p Policy) Backoff() time.Duration {
	span := p.MaxBackoff - p.MinBackoff
	if span <= 0 {
		return p.MinBackoff
	}
	return p.MinBackoff + rand.N(span+1)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.SetDefaults()
	retryable := p.IsRetryable
	if retryable == nil {
		retryable = DefaultIsRetryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.Backoff()); err != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, p.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retryable marks an error as worth retrying regardless of its message.
type Retryable struct {
	Err error
}

func (e *Retryable) Error() string { return e.Err.Error() }
func (e *Retryable) Unwrap() error { return e.Err }

// MarkRetryable wraps err so DefaultIsRetryable accepts it.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err}
}

var retryablePatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"temporary failure",
	"network is unreachable",
	"rate limit",
	"too many requests",
	"overloaded",
}

// DefaultIsRetryable accepts Retryable errors, deadline errors and errors
// whose message looks like a transient network or rate-limit failure.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r *Retryable
	if errors.As(err, &r) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
