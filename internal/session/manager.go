package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dirconsole_filter_sessions",
	Help: "Filter sessions currently held in memory.",
})

// Session is one client's filter session over a directory.
type Session struct {
	ID           string    `json:"id"`
	DirectoryID  string    `json:"directory_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	mu    sync.Mutex
	state State
}

// NewSession creates a session starting from state.
func NewSession(directoryID string, state State) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		DirectoryID:  directoryID,
		CreatedAt:    now,
		LastActiveAt: now,
		state:        state,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces ev into the session state and returns the result.
// Dispatches are serialized, so asynchronous results and keystrokes from
// different goroutines apply one at a time.
func (s *Session) Dispatch(r Reducer, ev Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = r.Reduce(s.state, ev)
	s.LastActiveAt = time.Now()
	return s.state
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastActiveAt) > timeout
}

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxAge      time.Duration
	idleTimeout time.Duration
}

// NewManager creates a session manager with the given timeouts.
func NewManager(maxAge, idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
	}
}

// Create registers a new session for a directory.
func (m *Manager) Create(directoryID string, initial State) *Session {
	s := NewSession(directoryID, initial)
	m.mu.Lock()
	m.sessions[s.ID] = s
	liveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID. Returns nil if not found or expired.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
		m.Remove(id)
		return nil
	}
	return s
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	liveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
}

// Len returns the number of sessions held.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup removes all expired and idle sessions. Called periodically.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.IsExpired(m.maxAge) || s.IsIdle(m.idleTimeout) {
			delete(m.sessions, id)
		}
	}
	liveSessions.Set(float64(len(m.sessions)))
}

// RunCleanup calls Cleanup every interval until done is closed.
func (m *Manager) RunCleanup(interval time.Duration, done <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.Cleanup()
		case <-done:
			return
		}
	}
}
