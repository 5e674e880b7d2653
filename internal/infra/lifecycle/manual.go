// Package lifecycle provides foreground/background event sources for the
// refresh scheduler.
package lifecycle

import (
	"sync"

	"github.com/vietddude/metalsync/internal/core/domain"
)

// Manual is a lifecycle source whose state is set explicitly, by the
// control API, a signal handler or a test.
type Manual struct {
	// notifyMu serializes Set so subscribers see transitions in order.
	notifyMu sync.Mutex

	mu     sync.Mutex
	state  domain.AppState
	nextID int
	subs   map[int]func(domain.AppState)
}

// NewManual returns a source in the given initial state.
func NewManual(initial domain.AppState) *Manual {
	return &Manual{
		state: initial,
		subs:  make(map[int]func(domain.AppState)),
	}
}

// IsForeground reports whether the current state is foreground.
func (m *Manual) IsForeground() bool {
	return m.State() == domain.AppStateForeground
}

// State returns the current state.
func (m *Manual) State() domain.AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
func (m *Manual) Subscribe(fn func(domain.AppState)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Set changes the state and notifies subscribers synchronously.
// Setting the current state again is a no-op. Subscribers must not call Set.
func (m *Manual) Set(state domain.AppState) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	subs := make([]func(domain.AppState), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	// Notify outside mu so subscribers may read the state or unsubscribe.
	for _, fn := range subs {
		fn(state)
	}
}

// Subscribers returns the number of registered subscribers.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
