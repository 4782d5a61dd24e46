package conversation

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
)

// Manager holds independent sessions keyed by id.
type Manager struct {
	window int

	mu       sync.RWMutex
	sessions map[string]*managed
	seq      uint64
	// defaultID names the session used by callers that send no id.
	defaultID string
}

type managed struct {
	*Session
	seq uint64
}

// NewManager creates a Manager whose sessions remember window turns.
func NewManager(window int) *Manager {
	return &Manager{window: window, sessions: make(map[string]*managed)}
}

// Create starts a new session with a random id.
func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString(), m.window)
	m.mu.Lock()
	m.add(s)
	m.mu.Unlock()
	return s
}

// Get returns the session with id or apperr.ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.Session, nil
}

// GetOrCreate returns the session with id. An empty id selects the default
// session. An unknown non-empty id is created under that id.
func (m *Manager) GetOrCreate(id string) *Session {
	if id == "" {
		return m.Default()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.Session
	}
	s := NewSession(id, m.window)
	m.add(s)
	return s
}

// Default returns the shared session of callers that do not track an id.
// It is created on first use and again after it has been deleted.
func (m *Manager) Default() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[m.defaultID]; ok && m.defaultID != "" {
		return s.Session
	}
	s := NewSession(uuid.NewString(), m.window)
	m.add(s)
	m.defaultID = s.ID()
	return s
}

// add registers s; m.mu must be held.
func (m *Manager) add(s *Session) {
	m.seq++
	m.sessions[s.ID()] = &managed{Session: s, seq: m.seq}
}

// Delete drops a session. It returns apperr.ErrNotFound for unknown ids.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// IDs lists session ids ordered by creation time.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	all := make([]*managed, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.ID()
	}
	return ids
}
