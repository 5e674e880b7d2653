package scheduler

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/infra/lifecycle"
)

func newAdaptive(initial domain.AppState) (*AdaptiveScheduler, *clockwork.FakeClock, *lifecycle.Manual) {
	clock := clockwork.NewFakeClock()
	lc := lifecycle.NewManual(initial)
	return NewAdaptive(clock, lc, AdaptiveConfig{}, nil), clock, lc
}

func TestComputeFrequency(t *testing.T) {
	cfg := DefaultConfig()
	base := time.Minute

	tests := []struct {
		idle time.Duration
		want time.Duration
	}{
		{0, base},
		{30 * time.Second, base},
		{119 * time.Second, base},
		{120 * time.Second, 2 * time.Minute},
		{150 * time.Second, 135 * time.Second},
		{8 * time.Minute, 5 * time.Minute},
		{time.Hour, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.idle.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, computeFrequency(base, tt.idle, cfg))
		})
	}
}

func TestNewAdaptive_Defaults(t *testing.T) {
	s, _, _ := newAdaptive(domain.AppStateForeground)
	assert.Equal(t, DefaultConfig(), s.config)
}

func TestAdaptive_DecaysWhileIdle(t *testing.T) {
	s, clock, _ := newAdaptive(domain.AppStateForeground)
	var calls counter

	s.Start(calls.inc, time.Minute)
	defer s.Stop()
	s.RecordInteraction()

	// polling ticker + supervisor
	clock.BlockUntil(2)

	clock.Advance(30 * time.Second)
	assert.Never(t, func() bool { return s.Frequency() != time.Minute }, quiet, tick)

	for range 4 {
		clock.Advance(30 * time.Second)
		clock.BlockUntil(2)
	}

	require.Eventually(t, func() bool { return s.Frequency() == 135*time.Second }, waitFor, tick)
	assert.Greater(t, s.Frequency(), time.Minute)
	assert.LessOrEqual(t, s.Frequency(), 5*time.Minute)
}

func TestAdaptive_InteractionRestoresBase(t *testing.T) {
	s, clock, _ := newAdaptive(domain.AppStateForeground)
	var calls counter

	s.Start(calls.inc, time.Minute)
	defer s.Stop()
	clock.BlockUntil(2)

	clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return s.Frequency() == 5*time.Minute }, waitFor, tick)

	s.RecordInteraction()
	assert.Equal(t, time.Minute, s.Frequency())
	assert.Equal(t, clock.Now(), s.LastInteraction())
}

func TestAdaptive_SupervisorIdleWhilePaused(t *testing.T) {
	s, clock, _ := newAdaptive(domain.AppStateBackground)
	var calls counter

	s.Start(calls.inc, time.Minute)
	defer s.Stop()

	// supervisor only
	clock.BlockUntil(1)
	clock.Advance(10 * time.Minute)
	assert.Never(t, func() bool { return s.Frequency() != time.Minute }, quiet, tick)
	assert.Equal(t, int32(0), calls.get())
}

func TestAdaptive_RecordInteractionWhilePausedStoresFrequency(t *testing.T) {
	s, clock, _ := newAdaptive(domain.AppStateBackground)

	s.Start(func() {}, time.Minute)
	defer s.Stop()
	clock.BlockUntil(1)

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 3*time.Minute, s.ComputeFrequency(4*time.Minute))

	// Idle is measured from the new interaction, so base wins.
	s.RecordInteraction()
	assert.Equal(t, time.Minute, s.Frequency())
	assert.Equal(t, PausedBackground, s.State())
}

func TestAdaptive_StopHaltsSupervisor(t *testing.T) {
	s, clock, lc := newAdaptive(domain.AppStateForeground)

	s.Start(func() {}, time.Minute)
	clock.BlockUntil(2)

	s.Stop()
	clock.BlockUntil(0)
	assert.Equal(t, 0, lc.Subscribers())

	clock.Advance(time.Hour)
	assert.Never(t, func() bool { return s.Frequency() != time.Minute }, quiet, tick)
}
