package pipeline

import (
	"fmt"
	"time"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"
)

// State is one phase of the per-turn state machine. A turn moves strictly
// forward through the stage states; any failure jumps to StateFailed.
type State string

const (
	StateDecoding     State = "decoding"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSynthesizing State = "synthesizing"
	StateEncoding     State = "encoding"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// StageTimeoutError indicates a stage exceeded its configured time budget.
type StageTimeoutError struct {
	Stage   State
	Timeout time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s timed out after %s", e.Stage, e.Timeout)
}

// Transition records one state machine edge for inspection.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// TurnOptions carries caller-selected parameters for one turn.
type TurnOptions struct {
	SessionID       string
	Format          string // Declared content type of the uploaded audio
	VoiceID         string
	Speed           float64
	HighPerformance bool
}

// TurnResult is the outcome of one conversational turn. A well-formed
// result is returned for every turn that gets past ingest, including
// failed ones.
type TurnResult struct {
	TurnID      string
	SessionID   string
	Status      conversation.Status
	UserText    string
	ReplyText   string
	ReplyAudio  []byte // Encoded reply audio; nil unless Status is ok
	FailedStage State
	Reason      string
	Trace       []Transition
}

// machine tracks a turn's progress through the stage states and keeps the
// transition trace so failure attribution is inspectable.
type machine struct {
	current State
	trace   []Transition
}

func newMachine() *machine {
	return &machine{current: StateDecoding, trace: []Transition{
		{From: "", To: StateDecoding, At: time.Now()},
	}}
}

// advance moves to the next sequential state.
func (m *machine) advance(to State) {
	m.trace = append(m.trace, Transition{From: m.current, To: to, At: time.Now()})
	m.current = to
}

// fail absorbs the machine into the failed state, remembering where it was.
// Returns the state the failure is attributed to.
func (m *machine) fail() State {
	at := m.current
	m.trace = append(m.trace, Transition{From: m.current, To: StateFailed, At: time.Now()})
	m.current = StateFailed
	return at
}
