package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for ids that were never issued or have expired.
var ErrUnknownSession = errors.New("unknown or expired session")

// Manager issues sessions and evicts the ones left idle longer than the TTL.
type Manager struct {
	pipeline *Pipeline
	history  *HistoryStore
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	stop     chan struct{}
}

// NewManager creates a manager. ttl <= 0 disables idle eviction; history may be nil.
func NewManager(p *Pipeline, history *HistoryStore, ttl time.Duration) *Manager {
	return &Manager{
		pipeline: p,
		history:  history,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new empty session.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.pipeline, m.history)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	slog.Debug("session: created", slog.String("session", s.ID))
	return s
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// GetOrCreate returns the session for id, or a new one when id is empty.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return m.Create(), nil
	}
	return m.Get(id)
}

// End tears a session down and deletes its stored history.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	m.teardown(ctx, s)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) teardown(ctx context.Context, s *Session) {
	s.Close()
	if m.history != nil {
		if err := m.history.Clear(ctx, s.ID); err != nil {
			slog.Warn("session: delete history", slog.String("session", s.ID), slog.Any("error", err))
		}
	}
}

// EvictIdle ends every session whose last activity is older than the TTL and
// returns how many were removed.
func (m *Manager) EvictIdle(ctx context.Context, now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.ttl {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.teardown(ctx, s)
	}
	if len(idle) > 0 {
		slog.Info("session: evicted idle sessions", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Start runs idle eviction every interval until Close.
func (m *Manager) Start(interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				m.EvictIdle(context.Background(), now)
			}
		}
	}()
}

// Close stops eviction and ends every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.teardown(ctx, s)
	}
}
