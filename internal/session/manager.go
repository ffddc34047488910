package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/entryservice"
)

// Manager creates and tracks sessions.
type Manager struct {
	svc    *entryservice.Service
	pub    Publisher
	logger *slog.Logger
	idle   time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. Sessions idle for longer than idle are closed
// by Run; zero disables expiry.
func NewManager(svc *entryservice.Service, pub Publisher, idle time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		svc:      svc,
		pub:      pub,
		logger:   logger,
		idle:     idle,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session at fragment.
func (m *Manager) Create(fragment string) *Session {
	id := uuid.NewString()
	s := newSession(id, fragment, m.svc, m.pub, m.logger)

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session created", slog.String("session_id", id), slog.Int("sessions", n))
	return s
}

// Get looks a session up. Unknown ids yield apperr.ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s, nil
}

// Close ends a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	s.Close()
	m.logger.Info("session closed", slog.String("session_id", id))
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions inactive since before now minus the idle timeout and
// returns how many were closed.
func (m *Manager) Sweep(now time.Time) int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idle)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		m.logger.Info("session expired", slog.String("session_id", s.ID()))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is cancelled, then closes all sessions.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.idle / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return nil
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
