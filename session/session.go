// Package session keeps the per-user conversation history a front end
// displays. The memory pipeline never reads it.
package session

import (
	"sync"

	"github.com/becomeliminal/recall/core"
)

// DefaultMaxTurns caps how many history entries a session keeps.
const DefaultMaxTurns = 200

// Session is one user's ordered conversation history.
type Session struct {
	mu       sync.Mutex
	userID   string
	turn     int
	history  []core.Turn
	maxTurns int
}

// UserID returns the owner of the session.
func (s *Session) UserID() string {
	return s.userID
}

// NextTurn reserves the next turn number. Turn numbers start at 1.
func (s *Session) NextTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn++
	return s.turn
}

// Observe records a caller-assigned turn number so later NextTurn calls
// continue after it.
func (s *Session) Observe(turn int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn > s.turn {
		s.turn = turn
	}
}

// Append adds one exchange to the history, trimming the oldest entries past
// the cap.
func (s *Session) Append(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		core.Turn{Role: core.RoleUser, Content: userText},
		core.Turn{Role: core.RoleAssistant, Content: assistantText},
	)
	if over := len(s.history) - s.maxTurns; s.maxTurns > 0 && over > 0 {
		s.history = append([]core.Turn(nil), s.history[over:]...)
	}
}

// History returns a copy of the history, oldest first.
func (s *Session) History() []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Manager hands out one Session per user id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxTurns int
}

// NewManager creates a manager whose sessions keep at most maxTurns entries.
// Zero means DefaultMaxTurns; negative means unbounded.
func NewManager(maxTurns int) *Manager {
	if maxTurns == 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Manager{sessions: make(map[string]*Session), maxTurns: maxTurns}
}

// Get returns the session for userID, creating it on first use.
// An empty id maps to core.DefaultUserID.
func (m *Manager) Get(userID string) *Session {
	if userID == "" {
		userID = core.DefaultUserID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{userID: userID, maxTurns: m.maxTurns}
		m.sessions[userID] = s
	}
	return s
}

// Lookup returns the session for userID without creating one.
func (m *Manager) Lookup(userID string) (*Session, bool) {
	if userID == "" {
		userID = core.DefaultUserID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Len returns the number of known users.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
