package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AdaptiveConfig holds configuration for activity-driven frequency.
type AdaptiveConfig struct {
	MaxFrequency      time.Duration // Ceiling for idle frequency (default: 5m)
	InteractionWindow time.Duration // Idle time still treated as active (default: 2m)
	SupervisorPeriod  time.Duration // Re-evaluation period while foreground (default: 30s)
}

// DefaultConfig returns the default adaptive configuration.
func DefaultConfig() AdaptiveConfig {
	return AdaptiveConfig{
		MaxFrequency:      5 * time.Minute,
		InteractionWindow: 2 * time.Minute,
		SupervisorPeriod:  30 * time.Second,
	}
}

// AdaptiveScheduler slows the polling frequency down as the user goes idle.
//
// Frequency is recomputed on every RecordInteraction and on a supervisory
// ticker while ActiveForeground:
//   - idle < InteractionWindow: base frequency
//   - otherwise: min(MaxFrequency, base + idle/2)
//
// Evaluations are serialized; the most recent one wins.
type AdaptiveScheduler struct {
	*PollingScheduler
	config AdaptiveConfig

	mu              sync.Mutex
	base            time.Duration
	lastInteraction time.Time
	supervisor      *armed
}

// NewAdaptive creates a stopped adaptive scheduler. Zero config fields take
// their defaults.
func NewAdaptive(
	clock clockwork.Clock,
	lifecycle LifecycleSource,
	config AdaptiveConfig,
	logger *slog.Logger,
) *AdaptiveScheduler {
	def := DefaultConfig()
	if config.MaxFrequency <= 0 {
		config.MaxFrequency = def.MaxFrequency
	}
	if config.InteractionWindow <= 0 {
		config.InteractionWindow = def.InteractionWindow
	}
	if config.SupervisorPeriod <= 0 {
		config.SupervisorPeriod = def.SupervisorPeriod
	}

	p := NewPolling(clock, lifecycle, logger)
	return &AdaptiveScheduler{
		PollingScheduler: p,
		config:           config,
		base:             DefaultFrequency,
		lastInteraction:  p.clock.Now(),
	}
}

// Start records frequency as the base frequency, starts polling and the
// supervisory ticker. Starting counts as an interaction.
func (s *AdaptiveScheduler) Start(callback func(), frequency time.Duration) {
	if frequency <= 0 {
		frequency = DefaultFrequency
	}

	s.mu.Lock()
	s.stopSupervisorLocked()
	s.base = frequency
	s.lastInteraction = s.clock.Now()
	s.mu.Unlock()

	s.PollingScheduler.Start(callback, frequency)

	s.mu.Lock()
	sup := &armed{
		ticker: s.clock.NewTicker(s.config.SupervisorPeriod),
		done:   make(chan struct{}),
	}
	s.supervisor = sup
	s.mu.Unlock()

	go s.supervise(sup)
}

// Stop stops polling and the supervisory ticker.
func (s *AdaptiveScheduler) Stop() {
	s.mu.Lock()
	s.stopSupervisorLocked()
	s.mu.Unlock()

	s.PollingScheduler.Stop()
}

// RecordInteraction marks the user as active now and recomputes frequency.
func (s *AdaptiveScheduler) RecordInteraction() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastInteraction = s.clock.Now()
	s.adjustLocked()
}

// LastInteraction returns when the user was last active.
func (s *AdaptiveScheduler) LastInteraction() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInteraction
}

// ComputeFrequency returns the frequency for the given idle time.
func (s *AdaptiveScheduler) ComputeFrequency(idle time.Duration) time.Duration {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	return computeFrequency(base, idle, s.config)
}

func computeFrequency(base, idle time.Duration, cfg AdaptiveConfig) time.Duration {
	if idle < cfg.InteractionWindow {
		return base
	}
	return min(cfg.MaxFrequency, base+idle/2)
}

func (s *AdaptiveScheduler) adjustLocked() {
	idle := s.clock.Since(s.lastInteraction)
	next := computeFrequency(s.base, idle, s.config)
	if next != s.PollingScheduler.Frequency() {
		s.PollingScheduler.SetFrequency(next)
	}
}

func (s *AdaptiveScheduler) supervise(sup *armed) {
	for {
		select {
		case <-sup.done:
			return
		case <-sup.ticker.Chan():
			if s.PollingScheduler.State() != ActiveForeground {
				continue
			}
			s.mu.Lock()
			if s.supervisor == sup {
				s.adjustLocked()
			}
			s.mu.Unlock()
		}
	}
}

func (s *AdaptiveScheduler) stopSupervisorLocked() {
	if s.supervisor == nil {
		return
	}
	s.supervisor.ticker.Stop()
	close(s.supervisor.done)
	s.supervisor = nil
}
