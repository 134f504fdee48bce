package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when the referenced session does not
// exist in the manager.
var ErrSessionNotFound = errors.New("session not found")

// Manager owns the live sessions of one process. Each session carries
// its own artifact store and generation registry scope; the manager only
// tracks identity and lifecycle.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Conversation
	logger   *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Conversation),
		logger:   logger,
	}
}

// Create opens a new session and returns it.
func (m *Manager) Create(title string) *Conversation {
	conv := New(m.logger)
	conv.SetTitle(title)

	m.mu.Lock()
	m.sessions[conv.ID()] = conv
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", conv.ID())
	return conv
}

// Get returns the session with the given id.
func (m *Manager) Get(id uuid.UUID) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (m *Manager) Delete(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// List returns all sessions, newest first.
func (m *Manager) List() []*Conversation {
	m.mu.Lock()
	all := make([]*Conversation, 0, len(m.sessions))
	for _, conv := range m.sessions {
		all = append(all, conv)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt().After(all[j].CreatedAt())
	})
	return all
}

// ImportSession rebuilds a session from Export output and registers it,
// replacing any live session with the same id.
func (m *Manager) ImportSession(data []byte) (*Conversation, error) {
	conv, err := Import(data, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[conv.ID()] = conv
	m.mu.Unlock()

	m.logger.Debug("session imported", "session_id", conv.ID())
	return conv, nil
}
