//go:build !windows

package lifecycle

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/metalsync/internal/core/domain"
)

func TestStateForSignal(t *testing.T) {
	assert.Equal(t, domain.AppStateBackground, stateForSignal(syscall.SIGUSR1))
	assert.Equal(t, domain.AppStateForeground, stateForSignal(syscall.SIGUSR2))
}

func TestNotifySignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManual(domain.AppStateForeground)
	NotifySignals(ctx, m)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, func() bool { return !m.IsForeground() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))
	require.Eventually(t, m.IsForeground, 2*time.Second, 10*time.Millisecond)
}
