package lifecycle

import "context"

// NotifySignals is a no-op on Windows, which has no user signals.
func NotifySignals(ctx context.Context, m *Manual) {}
