package core

import (
	"sync"

	"tejas.dev/portfolio-api/internal/domain"
)

// Sessions holds conversation history in process memory, keyed by session id.
type Sessions struct {
	mu    sync.RWMutex
	turns map[string][]domain.Turn
}

func NewSessions() *Sessions {
	return &Sessions{turns: make(map[string][]domain.Turn)}
}

// History returns a copy of every turn of a session, oldest first.
func (s *Sessions) History(sessionID string) []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}

// Append adds turns to a session, creating it on first use.
func (s *Sessions) Append(sessionID string, turns ...domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turns...)
}
