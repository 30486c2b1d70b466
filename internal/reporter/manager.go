package reporter

import (
	"context"
	"sync"

	"reparto-backend/internal/models"
)

// SessionFactory builds the session for one courier.
type SessionFactory func(courierID string) *Session

// Manager keeps at most one session alive and ties it to the current
// actor: a courier actor gets a running session, anyone else gets none.
type Manager struct {
	mu      sync.Mutex
	factory SessionFactory
	current *Session
}

func NewManager(factory SessionFactory) *Manager {
	return &Manager{factory: factory}
}

// SetActor starts, replaces or stops the session to match actor.
func (m *Manager) SetActor(ctx context.Context, actor models.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if actor.Role == models.RoleCourier && m.current != nil && m.current.CourierID() == actor.ID {
		return nil
	}
	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
	if actor.Role != models.RoleCourier || actor.ID == "" {
		return nil
	}

	s := m.factory(actor.ID)
	if err := s.Start(ctx); err != nil {
		return err
	}
	m.current = s
	return nil
}

// Current returns the running session, if any.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Stop ends the running session.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
}
