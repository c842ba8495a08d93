package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // rate-limited, use longer backoff
)

type Policy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration // zero means uncapped
	RateLimitBackoff time.Duration
	OnRetry          func(attempt int, err error, backoff time.Duration)
	Clock            clockwork.Clock // nil means the real clock
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)

// Backoff is the wait before retry number attempt (1-based): InitialBackoff doubled
// per attempt, capped at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

func (p Policy) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}

// Sleep waits for d on the policy clock or until ctx is done.
func (p Policy) Sleep(ctx context.Context, d time.Duration) error {
	timer := p.clock().NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action := classify(err)
		if action == Stop {
			var zero T
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			var zero T
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		backoff := p.Backoff(attempt)
		if action == After {
			backoff = p.RateLimitBackoff
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		if err := p.Sleep(ctx, backoff); err != nil {
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
