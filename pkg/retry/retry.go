package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

// Policy is an exponential backoff policy applied by callers of the record store.
// The store itself never retries.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Retryable decides whether an error is worth another attempt.
	// Defaults to errors classified REMOTE_UNAVAILABLE.
	Retryable func(error) bool
}

// Default returns the policy used when none is configured.
func Default() Policy {
	return Policy{MaxAttempts: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second, Multiplier: 2}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 200 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Retryable == nil {
		p.Retryable = appErrors.IsRetryable
	}
	return p
}

// Backoff returns the wait before the given retry. attempt is 1 for the first retry.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxBackoff) || math.IsInf(d, 0) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// ShouldRetry reports whether another attempt is allowed after `attempts` tries failed with err.
func (p Policy) ShouldRetry(attempts int, err error) bool {
	p = p.normalized()
	return err != nil && attempts < p.MaxAttempts && p.Retryable(err)
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts are exhausted.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	p = p.normalized()
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !p.ShouldRetry(attempt, err) {
			if attempt > 1 {
				return fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			return err
		}
		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
