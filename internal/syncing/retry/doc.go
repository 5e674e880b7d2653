// Package retry wraps fetch operations with bounded-attempt exponential backoff.
//
// An Executor holds only an immutable Policy plus injected collaborators, so a
// single instance may serve concurrent independent calls.
//
//	policy, _ := retry.NewPolicy(3, time.Second)
//	executor := retry.NewExecutor(policy, retry.WithClock(clock))
//
//	quote, err := retry.Do(ctx, executor, func(ctx context.Context) (domain.Quote, error) {
//	    return fetcher.Fetch(ctx, domain.SymbolGold)
//	})
//
// With MaxAttempts = 3 the operation runs at most four times, waiting
// BaseDelay, 2*BaseDelay and 4*BaseDelay between attempts. Failures classified
// as AuthError or RateLimitError are returned on first occurrence.
package retry
