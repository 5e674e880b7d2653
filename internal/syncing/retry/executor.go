package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/syncing/classify"
)

// Executor runs operations under a Policy.
//
// WithOnRetry returns a new instance; the receiver is never modified, so an
// Executor shared between goroutines stays safe.
type Executor struct {
	policy   Policy
	classify func(error) domain.ErrorKind
	clock    clockwork.Clock
	onRetry  func(attempt int, err error, kind domain.ErrorKind, delay time.Duration)
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used for backoff waits.
func WithClock(c clockwork.Clock) Option {
	return func(e *Executor) {
		e.clock = c
	}
}

// WithClassifier replaces classify.Classify.
func WithClassifier(fn func(error) domain.ErrorKind) Option {
	return func(e *Executor) {
		e.classify = fn
	}
}

// NewExecutor creates an executor for policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy:   policy,
		classify: classify.Classify,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithOnRetry returns a copy of e that calls cb before each backoff wait.
func (e *Executor) WithOnRetry(
	cb func(attempt int, err error, kind domain.ErrorKind, delay time.Duration),
) *Executor {
	clone := *e
	clone.onRetry = cb
	return &clone
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs operation until it succeeds, fails with a non-retryable kind,
// or the attempt budget is spent. The last error is returned unwrapped. If ctx
// ends during a backoff wait, the result wraps both the last error and ctx.Err().
func (e *Executor) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= e.policy.MaxAttempts; attempt++ {
		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}

		kind := e.classify(lastErr)
		if !classify.Retryable(kind) {
			return lastErr
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		if e.onRetry != nil {
			e.onRetry(attempt, lastErr, kind, delay)
		}
		if err := e.wait(ctx, delay); err != nil {
			// Keep the operation error so callers still classify the real failure.
			return errors.Join(lastErr, err)
		}
	}

	return lastErr
}

func (e *Executor) wait(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := e.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
