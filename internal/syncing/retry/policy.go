package retry

import (
	"fmt"
	"time"
)

// Policy is the immutable attempt budget of an Executor.
type Policy struct {
	// MaxAttempts is the number of retries after the initial invocation.
	MaxAttempts int
	// BaseDelay is the wait before the first retry; it doubles per attempt.
	BaseDelay time.Duration
}

const (
	// MaxAttemptsLimit bounds MaxAttempts accepted by NewPolicy.
	MaxAttemptsLimit = 10
	// MaxDelay caps a single backoff wait.
	MaxDelay = time.Hour
)

// DefaultPolicy matches the refresh engine defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
}

// NewPolicy validates and builds a Policy.
func NewPolicy(maxAttempts int, baseDelay time.Duration) (Policy, error) {
	if maxAttempts < 0 {
		return Policy{}, fmt.Errorf("max attempts must be >= 0, got %d", maxAttempts)
	}
	if maxAttempts > MaxAttemptsLimit {
		return Policy{}, fmt.Errorf("max attempts must be <= %d, got %d", MaxAttemptsLimit, maxAttempts)
	}
	if baseDelay < 0 {
		return Policy{}, fmt.Errorf("base delay must be >= 0, got %s", baseDelay)
	}
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}, nil
}

// Delay returns the backoff before the retry that follows attempt a (0-based),
// saturating at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	if p.BaseDelay >= MaxDelay || attempt >= 62 || p.BaseDelay > MaxDelay>>uint(attempt) {
		return MaxDelay
	}
	return p.BaseDelay << uint(attempt)
}

// Invocations is the maximum number of times an operation runs.
func (p Policy) Invocations() int {
	return p.MaxAttempts + 1
}
