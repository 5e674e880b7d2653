//go:build !windows

package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vietddude/metalsync/internal/core/domain"
)

// NotifySignals drives m from process signals until ctx is done:
// SIGUSR1 moves to background, SIGUSR2 to foreground.
func NotifySignals(ctx context.Context, m *Manual) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				state := stateForSignal(sig)
				slog.Info("Lifecycle signal received", "signal", sig, "state", state)
				m.Set(state)
			}
		}
	}()
}

func stateForSignal(sig os.Signal) domain.AppState {
	if sig == syscall.SIGUSR1 {
		return domain.AppStateBackground
	}
	return domain.AppStateForeground
}
