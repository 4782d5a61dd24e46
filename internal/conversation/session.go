// Package conversation keeps bounded question/answer histories per session.
package conversation

import (
	"strings"
	"sync"
	"time"
)

// DefaultWindow is the number of turns a session remembers.
const DefaultWindow = 5

// Turn is one answered question.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Sources  []string  `json:"sources"`
	At       time.Time `json:"at"`
}

// Session is an independent conversation. Turns beyond the window are
// evicted oldest first.
type Session struct {
	id     string
	window int

	mu    sync.RWMutex
	turns []Turn

	// exchange serializes render → generate → append for this session.
	exchange sync.Mutex
}

// NewSession creates an empty session. A non-positive window uses DefaultWindow.
func NewSession(id string, window int) *Session {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Session{id: id, window: window}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Append adds t as the newest turn, evicting the oldest when the window is exceeded.
func (s *Session) Append(t Turn) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	if len(s.turns) > s.window {
		s.turns = append(s.turns[:0:0], s.turns[1:]...)
	}
}

// Turns returns a copy of the current turns, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of remembered turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Render formats the history, oldest first, as it appears in a prompt.
func (s *Session) Render() string {
	return Render(s.Turns())
}

// Render formats turns as "Human: …\nAssistant: …" blocks joined by newlines.
func Render(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, "Human: "+t.Question+"\nAssistant: "+t.Answer)
	}
	return strings.Join(lines, "\n")
}

// Exchange runs fn with the current transcript while holding the session's
// exchange lock, and appends the returned turn when fn succeeds. Concurrent
// exchanges on one session therefore see each other's turns in order.
func (s *Session) Exchange(fn func(transcript string) (Turn, error)) error {
	s.exchange.Lock()
	defer s.exchange.Unlock()

	turn, err := fn(s.Render())
	if err != nil {
		return err
	}
	s.Append(turn)
	return nil
}
