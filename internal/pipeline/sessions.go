package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"
)

// SessionInfo summarizes one session for monitoring endpoints.
type SessionInfo struct {
	ID        string    `json:"id"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Sessions owns the conversation state of every active session. Each
// session's history is isolated; the janitor evicts sessions idle past the
// configured timeout.
type Sessions struct {
	logger      *slog.Logger
	maxTurns    int
	idleTimeout time.Duration

	mu     sync.RWMutex
	states map[string]*conversation.State

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessions creates a session manager. A non-positive idleTimeout
// disables the janitor.
func NewSessions(logger *slog.Logger, maxTurns int, idleTimeout time.Duration) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sessions{
		logger:      logger,
		maxTurns:    maxTurns,
		idleTimeout: idleTimeout,
		states:      make(map[string]*conversation.State),
		stopCh:      make(chan struct{}),
	}

	if idleTimeout > 0 {
		s.wg.Add(1)
		go s.janitor()
	}

	return s
}

// GetOrCreate returns the state for a session, creating it on first use.
// An empty id gets a fresh session with a generated id. The effective
// session id is returned alongside the state.
func (s *Sessions) GetOrCreate(id string) (*conversation.State, string) {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[id]
	if !ok {
		state = conversation.NewState(s.maxTurns)
		s.states[id] = state
		s.logger.Debug("Session created", slog.String("session_id", id))
	}

	return state, id
}

// Get returns the state for an existing session.
func (s *Sessions) Get(id string) (*conversation.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	return state, ok
}

// Remove drops a session and its history.
func (s *Sessions) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
}

// Count returns the number of active sessions.
func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Infos returns a monitoring summary of every session.
func (s *Sessions) Infos() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.states))
	for id, state := range s.states {
		out = append(out, SessionInfo{
			ID:        id,
			Turns:     state.Len(),
			CreatedAt: state.CreatedAt(),
			LastUsed:  state.LastUsed(),
		})
	}
	return out
}

// janitor periodically evicts sessions idle past the timeout.
func (s *Sessions) janitor() {
	defer s.wg.Done()

	interval := s.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sessions) evictIdle() {
	cutoff := time.Now().Add(-s.idleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, state := range s.states {
		if state.LastUsed().Before(cutoff) {
			delete(s.states, id)
			s.logger.Info("Evicted idle session",
				slog.String("session_id", id),
				slog.Time("last_used", state.LastUsed()),
			)
		}
	}
}

// Stop terminates the janitor. Session state remains readable.
func (s *Sessions) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
