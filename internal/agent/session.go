// Package agent hosts reasoning sessions and drives the
// thought-action-observation loop over them.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/archivist/internal/window"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrBusy     = errors.New("session is already answering a question")
)

// Session is one conversation with its own context window. The window is
// internally synchronized; the remaining fields are owned by the Manager.
type Session struct {
	ID             string          `json:"session_id"`
	Status         Status          `json:"status"`
	Window         *window.Manager `json:"-"`
	AllowedTools   []string        `json:"allowed_tools,omitempty"`
	IterationCount int             `json:"iteration_count"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`

	busy bool
}

func (s *Session) toolAllowed(name, permission string) bool {
	if len(s.AllowedTools) == 0 {
		return true
	}
	for _, a := range s.AllowedTools {
		if a == name || a == permission {
			return true
		}
	}
	return false
}

// Manager tracks live sessions and expires the inactive ones.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	newWindow         func() *window.Manager
	allowedTools      []string
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(newWindow func() *window.Manager, allowedTools []string, inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		newWindow:         newWindow,
		allowedTools:      allowedTools,
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create() *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		Window:         m.newWindow(),
		AllowedTools:   append([]string(nil), m.allowedTools...),
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Acquire marks the session busy for the duration of one question. A
// session answers one question at a time.
func (m *Manager) Acquire(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != StatusActive {
		return nil, ErrNotFound
	}
	if s.busy {
		return nil, ErrBusy
	}
	s.busy = true
	s.LastActivityAt = time.Now().UTC()
	return s, nil
}

func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.busy = false
		s.LastActivityAt = time.Now().UTC()
	}
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	return s, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive || s.busy {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, s)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
