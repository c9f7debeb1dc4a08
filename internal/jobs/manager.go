package jobs

import (
	"errors"
	"reflect"
	"slices"
	"sync"

	"video-transcriber/internal/domain"
)

// ErrSessionBusy is returned when a batch is requested while one is in flight.
var ErrSessionBusy = errors.New("session busy")

// ErrSessionFailed is returned when a batch is requested before an errored session is reset.
var ErrSessionFailed = errors.New("session in error phase; reset required")

// Manager holds the single session record and applies actions through Reduce.
type Manager struct {
	mu      sync.RWMutex
	current domain.Session
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{current: IdleSession()}
}

// Apply reduces one action against the current session. accepted is false
// when the action did not apply to the current phase.
func (m *Manager) Apply(action Action) (next domain.Session, effects []Effect, accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current
	next, effects = Reduce(prev, action)
	accepted = len(effects) > 0 || !reflect.DeepEqual(prev, next)
	m.current = next
	return cloneSession(next), effects, accepted
}

// Current returns a snapshot of the session.
func (m *Manager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSession(m.current)
}

// CanStartBatch reports why a new batch cannot be started, or nil when it can.
func (m *Manager) CanStartBatch() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case isBusy(m.current.Phase):
		return ErrSessionBusy
	case m.current.Phase == domain.PhaseError:
		return ErrSessionFailed
	default:
		return nil
	}
}

// cloneSession copies the job slice so snapshots never alias manager state.
func cloneSession(s domain.Session) domain.Session {
	s.Jobs = slices.Clone(s.Jobs)
	if s.Error != nil {
		errCopy := *s.Error
		s.Error = &errCopy
	}
	return s
}
