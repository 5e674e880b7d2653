// Package scheduler runs the refresh callback on a repeating timer that is
// gated by the host application's foreground/background lifecycle.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/syncing/metrics"
)

// DefaultFrequency is used when Start is given a non-positive frequency.
const DefaultFrequency = 60 * time.Second

// LifecycleSource reports the host lifecycle phase and its transitions.
type LifecycleSource interface {
	IsForeground() bool
	// Subscribe registers fn and returns a func that deregisters it.
	Subscribe(fn func(domain.AppState)) (unsubscribe func())
}

// State is the scheduler state.
type State int

const (
	Stopped State = iota
	ActiveForeground
	PausedBackground
)

func (s State) String() string {
	switch s {
	case ActiveForeground:
		return "active_foreground"
	case PausedBackground:
		return "paused_background"
	default:
		return "stopped"
	}
}

// armed is one live ticker and the goroutine draining it.
type armed struct {
	ticker clockwork.Ticker
	done   chan struct{}
}

// PollingScheduler invokes a callback every frequency while the host is in
// the foreground. At most one timer is armed at any time, and only in
// ActiveForeground.
type PollingScheduler struct {
	clock     clockwork.Clock
	lifecycle LifecycleSource
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	frequency   time.Duration
	callback    func()
	timer       *armed
	unsubscribe func()
}

// NewPolling creates a stopped scheduler.
func NewPolling(clock clockwork.Clock, lifecycle LifecycleSource, logger *slog.Logger) *PollingScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingScheduler{
		clock:     clock,
		lifecycle: lifecycle,
		logger:    logger,
		frequency: DefaultFrequency,
	}
}

// Start begins periodic invocation of callback. Calling Start on a running
// scheduler restarts it from scratch.
func (s *PollingScheduler) Start(callback func(), frequency time.Duration) {
	if frequency <= 0 {
		frequency = DefaultFrequency
	}

	// Subscribe before sampling the current phase so no transition is lost.
	unsubscribe := s.lifecycle.Subscribe(s.handleLifecycle)

	s.mu.Lock()
	previous := s.stopLocked()
	s.callback = callback
	s.frequency = frequency
	s.unsubscribe = unsubscribe
	metrics.SchedulerFrequency.Set(frequency.Seconds())

	if s.lifecycle.IsForeground() {
		s.state = ActiveForeground
		s.armLocked()
	} else {
		s.state = PausedBackground
	}
	state := s.state
	s.mu.Unlock()

	if previous != nil {
		previous()
	}
	s.logger.Debug("Scheduler started", "state", state, "frequency", frequency)
}

// Stop disarms the timer and deregisters from lifecycle notifications.
// It does not wait for a callback that is already running.
func (s *PollingScheduler) Stop() {
	s.mu.Lock()
	unsubscribe := s.stopLocked()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *PollingScheduler) stopLocked() func() {
	s.disarmLocked()
	s.state = Stopped
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	return unsubscribe
}

// SetFrequency changes the period. While ActiveForeground the timer is
// re-armed at the new period; otherwise the value is kept for the next arming.
func (s *PollingScheduler) SetFrequency(frequency time.Duration) {
	if frequency <= 0 {
		s.logger.Warn("Ignoring non-positive scheduler frequency", "frequency", frequency)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.frequency = frequency
	metrics.SchedulerFrequency.Set(frequency.Seconds())
	if s.state == ActiveForeground {
		s.disarmLocked()
		s.armLocked()
	}
	s.logger.Debug("Scheduler frequency changed", "frequency", frequency, "state", s.state)
}

// Trigger invokes the callback immediately unless the scheduler is stopped.
func (s *PollingScheduler) Trigger() {
	s.mu.Lock()
	cb := s.callback
	running := s.state != Stopped
	s.mu.Unlock()

	if running && cb != nil {
		cb()
	}
}

// IsUpdating reports whether periodic ticking is live.
func (s *PollingScheduler) IsUpdating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == ActiveForeground && s.timer != nil
}

// State returns the current state.
func (s *PollingScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frequency returns the current period.
func (s *PollingScheduler) Frequency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

func (s *PollingScheduler) handleLifecycle(next domain.AppState) {
	s.mu.Lock()
	var catchUp func()
	switch {
	case next == domain.AppStateForeground && s.state == PausedBackground:
		s.state = ActiveForeground
		s.armLocked()
		catchUp = s.callback
	case next == domain.AppStateBackground && s.state == ActiveForeground:
		s.state = PausedBackground
		s.disarmLocked()
	}
	state := s.state
	s.mu.Unlock()

	s.logger.Debug("Lifecycle transition", "event", next, "state", state)
	if catchUp != nil {
		catchUp()
	}
}

func (s *PollingScheduler) armLocked() {
	t := &armed{
		ticker: s.clock.NewTicker(s.frequency),
		done:   make(chan struct{}),
	}
	s.timer = t
	go s.run(t)
}

func (s *PollingScheduler) disarmLocked() {
	if s.timer == nil {
		return
	}
	s.timer.ticker.Stop()
	close(s.timer.done)
	s.timer = nil
}

func (s *PollingScheduler) run(t *armed) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.Chan():
			s.mu.Lock()
			// A tick racing with disarm belongs to a dead timer.
			live := s.timer == t
			cb := s.callback
			s.mu.Unlock()

			if live && cb != nil {
				cb()
			}
		}
	}
}
