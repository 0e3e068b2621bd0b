// package sessions holds server-side session records and the signed cookie that points at them.
package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/findtune/internal/models"
	"github.com/desertthunder/findtune/internal/shared"
)

// Store persists [models.Session] records.
//
// Get and FindByState return [shared.ErrSessionNotFound] for missing or expired sessions.
type Store interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	FindByState(ctx context.Context, state string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a process-local [Store].
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	clock    shared.Clock
}

// NewMemoryStore creates an empty [MemoryStore]. A nil clock uses the system clock.
func NewMemoryStore(clock shared.Clock) *MemoryStore {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &MemoryStore{sessions: make(map[string]models.Session), clock: clock}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || s.Expired(m.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	return clone(s), nil
}

func (m *MemoryStore) FindByState(ctx context.Context, state string) (*models.Session, error) {
	if state == "" {
		return nil, shared.ErrSessionNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	for _, s := range m.sessions {
		if s.Login != nil && s.Login.State == state && !s.Expired(now) {
			return clone(s), nil
		}
	}
	return nil, shared.ErrSessionNotFound
}

func (m *MemoryStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id is required", shared.ErrInvalidInput)
	}

	session.UpdatedAt = m.clock.Now()

	m.mu.Lock()
	m.sessions[session.ID] = *clone(*session)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	n := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls [MemoryStore.Sweep] every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func clone(s models.Session) *models.Session {
	if s.Login != nil {
		login := *s.Login
		s.Login = &login
	}
	return &s
}
