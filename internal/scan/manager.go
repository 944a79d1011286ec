package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockscan/internal/logger"
)

var ErrSessionNotFound = errors.New("scan session not found")

// Manager owns the live sessions.
type Manager struct {
	deps   Deps
	base   context.Context
	cancel context.CancelFunc

	mutex    sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:     deps,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Create() *Session {
	s := newSession(m.base, uuid.NewString(), m.deps)

	m.mutex.Lock()
	m.sessions[s.id] = s
	m.mutex.Unlock()

	logger.LogInfo("Scan session %s created", s.id)
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears the session down and forgets it.
func (m *Manager) Close(id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	logger.LogInfo("Scan session %s closed", id)
	return nil
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// ReapIdle closes sessions untouched for longer than maxIdle, releasing any
// camera they still hold. Sessions waiting on detection are kept.
func (m *Manager) ReapIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mutex.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.State() == Pending {
			continue
		}
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mutex.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		logger.LogInfo("Reaped %d idle scan session(s)", len(stale))
	}
	return len(stale)
}

// Shutdown cancels all detections and closes every session.
func (m *Manager) Shutdown() {
	m.cancel()

	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
