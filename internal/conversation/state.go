package conversation

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status describes the terminal outcome of a conversational turn.
type Status string

const (
	// StatusOK means every stage completed and reply audio was produced.
	StatusOK Status = "ok"
	// StatusPartial means transcription succeeded but a later stage failed,
	// so the user utterance is preserved without a spoken reply.
	StatusPartial Status = "partial"
	// StatusFailed means the turn produced no usable transcript.
	StatusFailed Status = "failed"
)

// Turn records one completed user/assistant exchange. Turns are immutable
// once appended to a State.
type Turn struct {
	ID          string    `json:"id"`
	UserText    string    `json:"user_text"`
	ReplyText   string    `json:"reply_text"`
	Status      Status    `json:"status"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// State holds the ordered turn history for one session. History is bounded:
// once maxTurns is exceeded the oldest turn is evicted first. Eviction never
// reorders the remaining turns.
type State struct {
	mu        sync.RWMutex
	turns     []Turn
	maxTurns  int
	createdAt time.Time
	lastUsed  time.Time
}

// NewState creates an empty conversation state holding at most maxTurns
// turns. A non-positive maxTurns disables eviction.
func NewState(maxTurns int) *State {
	now := time.Now()
	return &State{
		turns:     make([]Turn, 0),
		maxTurns:  maxTurns,
		createdAt: now,
		lastUsed:  now,
	}
}

// Append adds a completed turn to the history, evicting the oldest turn
// when the configured bound is exceeded.
func (s *State) Append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	s.lastUsed = time.Now()

	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		overflow := len(s.turns) - s.maxTurns
		s.turns = append(s.turns[:0:0], s.turns[overflow:]...)
	}
}

// Turns returns a copy of the turn history in creation order.
func (s *State) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of retained turns.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Touch updates the last-used timestamp without modifying history.
func (s *State) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
}

// LastUsed returns the time of the most recent append or touch.
func (s *State) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// CreatedAt returns the time the state was created.
func (s *State) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// snapshot is the serialized form of a State.
type snapshot struct {
	MaxTurns  int       `json:"max_turns"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns"`
}

// Snapshot serializes the turn history to JSON so an external collaborator
// can persist a session across process restarts.
func (s *State) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return json.Marshal(snapshot{
		MaxTurns:  s.maxTurns,
		CreatedAt: s.createdAt,
		Turns:     s.turns,
	})
}

// Restore replaces the turn history from a prior Snapshot. The configured
// bound of the receiving state applies; excess restored turns are evicted
// oldest-first.
func (s *State) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode conversation snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := snap.Turns
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}

	s.turns = append([]Turn(nil), turns...)
	if !snap.CreatedAt.IsZero() {
		s.createdAt = snap.CreatedAt
	}
	s.lastUsed = time.Now()

	return nil
}
