package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/audio"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/llm"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/metrics"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/stt"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/tts"
)

// Config contains orchestrator parameters.
type Config struct {
	// PerStageTimeout bounds each model stage invocation. Mandatory; a
	// zero value falls back to 30 seconds so no stage can block forever.
	PerStageTimeout time.Duration
	// RetryTransientGeneration enables a single same-input retry of the
	// generation stage after a network-class failure.
	RetryTransientGeneration bool
	// OutputFormat is the container of the reply audio.
	OutputFormat string
}

// Orchestrator sequences one conversational turn: decode, transcribe,
// generate, synthesize, encode. It owns the only write access to
// conversation history; the stages themselves are stateless.
type Orchestrator struct {
	codec       *audio.Codec
	transcriber *stt.Stage
	generator   *llm.Stage
	synthesizer *tts.Stage
	sessions    *Sessions
	cfg         Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewOrchestrator wires the codec and the three stages into a turn pipeline.
func NewOrchestrator(codec *audio.Codec, transcriber *stt.Stage, generator *llm.Stage,
	synthesizer *tts.Stage, sessions *Sessions, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {

	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PerStageTimeout <= 0 {
		cfg.PerStageTimeout = 30 * time.Second
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "wav"
	}

	return &Orchestrator{
		codec:       codec,
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
		sessions:    sessions,
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
	}
}

// Sessions exposes the session manager for monitoring surfaces.
func (o *Orchestrator) Sessions() *Sessions {
	return o.sessions
}

// RunTurn processes one full turn: user audio in, assistant audio out.
// Ingest failures (bad format, oversized payload) are returned as errors
// before a turn starts. Every stage failure after ingest is mapped into a
// well-formed TurnResult with a terminal status and recorded in the
// session history; RunTurn does not return an error for those.
func (o *Orchestrator) RunTurn(ctx context.Context, rawAudio []byte, opts TurnOptions) (*TurnResult, error) {
	turnStart := time.Now()
	o.metrics.RecordTurnStarted()

	mach := newMachine()

	// Ingest. The turn never starts on decode failure: nothing is
	// appended to history and the error goes straight back to the caller.
	inputBuf, err := o.codec.Decode(rawAudio, opts.Format)
	if err != nil {
		o.metrics.RecordStageFailure(string(StateDecoding), "ingest")
		return nil, err
	}

	if opts.SessionID == "" {
		o.metrics.RecordSessionCreated()
	} else if _, ok := o.sessions.Get(opts.SessionID); !ok {
		o.metrics.RecordSessionCreated()
	}
	state, sessionID := o.sessions.GetOrCreate(opts.SessionID)
	turnID := uuid.NewString()

	logger := o.logger.With(
		slog.String("turn_id", turnID),
		slog.String("session_id", sessionID),
	)
	logger.Info("Turn started",
		slog.Duration("input_duration", inputBuf.Duration()),
		slog.Int("input_bytes", len(rawAudio)),
	)

	// Transcribing.
	mach.advance(StateTranscribing)
	if err := ctx.Err(); err != nil {
		return o.failTurn(mach, state, turnID, sessionID, "", "", err, false, turnStart), nil
	}

	var utterance stt.Utterance
	err = o.invokeStage(ctx, StateTranscribing, func(sc context.Context) error {
		var terr error
		utterance, terr = o.transcriber.Transcribe(sc, inputBuf)
		return terr
	})
	if err != nil {
		return o.failTurn(mach, state, turnID, sessionID, "", "", err, false, turnStart), nil
	}

	userText := utterance.Text
	if utterance.Empty {
		userText = ""
	}

	// Generating. History is snapshotted once so a retry sees identical
	// inputs.
	mach.advance(StateGenerating)
	if err := ctx.Err(); err != nil {
		return o.failTurn(mach, state, turnID, sessionID, userText, "", err, true, turnStart), nil
	}

	history := state.Turns()
	var replyText string
	generate := func(sc context.Context) error {
		var gerr error
		replyText, gerr = o.generator.Generate(sc, userText, history)
		return gerr
	}

	err = o.invokeStage(ctx, StateGenerating, generate)
	if err != nil && o.cfg.RetryTransientGeneration && ctx.Err() == nil {
		var genErr *llm.GenerationError
		if errors.As(err, &genErr) && genErr.Retryable() {
			logger.Warn("Retrying generation after transient failure",
				slog.String("error", err.Error()),
			)
			o.metrics.RecordStageRetry()
			err = o.invokeStage(ctx, StateGenerating, generate)
		}
	}
	if err != nil {
		return o.failTurn(mach, state, turnID, sessionID, userText, "", err, true, turnStart), nil
	}

	// Synthesizing. A cancellation observed here means generation already
	// ran; the turn is abandoned without rolling that call back.
	mach.advance(StateSynthesizing)
	if err := ctx.Err(); err != nil {
		return o.failTurn(mach, state, turnID, sessionID, userText, replyText, err, true, turnStart), nil
	}

	speed := o.synthesizer.EffectiveSpeed(opts.Speed, opts.HighPerformance)
	var replyBuf *audio.Buffer
	err = o.invokeStage(ctx, StateSynthesizing, func(sc context.Context) error {
		var serr error
		replyBuf, serr = o.synthesizer.Synthesize(sc, replyText, opts.VoiceID, speed)
		return serr
	})
	if err != nil {
		return o.failTurn(mach, state, turnID, sessionID, userText, replyText, err, true, turnStart), nil
	}

	// Encoding.
	mach.advance(StateEncoding)
	if err := ctx.Err(); err != nil {
		return o.failTurn(mach, state, turnID, sessionID, userText, replyText, err, true, turnStart), nil
	}

	replyAudio, err := o.codec.Encode(replyBuf, o.cfg.OutputFormat)
	if err != nil {
		return o.failTurn(mach, state, turnID, sessionID, userText, replyText,
			fmt.Errorf("failed to encode reply audio: %w", err), true, turnStart), nil
	}

	mach.advance(StateDone)

	turn := conversation.Turn{
		ID:        turnID,
		UserText:  userText,
		ReplyText: replyText,
		Status:    conversation.StatusOK,
		CreatedAt: time.Now(),
	}
	state.Append(turn)

	o.metrics.RecordTurnCompleted(string(conversation.StatusOK), time.Since(turnStart).Seconds())
	o.metrics.RecordReplyAudio(replyBuf.Duration().Seconds())
	o.metrics.SetActiveSessions(o.sessions.Count())

	logger.Info("Turn completed",
		slog.String("status", string(conversation.StatusOK)),
		slog.Duration("reply_duration", replyBuf.Duration()),
		slog.Duration("elapsed", time.Since(turnStart)),
	)

	return &TurnResult{
		TurnID:     turnID,
		SessionID:  sessionID,
		Status:     conversation.StatusOK,
		UserText:   userText,
		ReplyText:  replyText,
		ReplyAudio: replyAudio,
		Trace:      mach.trace,
	}, nil
}

// invokeStage runs one stage under the per-stage timeout. A deadline hit
// inside the stage while the parent context is still alive is reported as
// a StageTimeoutError attributed to that stage.
func (o *Orchestrator) invokeStage(ctx context.Context, st State, fn func(context.Context) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.PerStageTimeout)
	defer cancel()

	start := time.Now()
	err := fn(stageCtx)
	o.metrics.RecordStageDuration(string(st), time.Since(start).Seconds())

	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return &StageTimeoutError{Stage: st, Timeout: o.cfg.PerStageTimeout}
	}
	return err
}

// failTurn absorbs the state machine into Failed, records the turn in
// history, and builds the non-audio result. transcribed marks whether a
// usable transcript exists, which upgrades the status to partial unless
// the turn was cancelled.
func (o *Orchestrator) failTurn(mach *machine, state *conversation.State, turnID, sessionID,
	userText, replyText string, cause error, transcribed bool, turnStart time.Time) *TurnResult {

	failedAt := mach.fail()

	status := conversation.StatusFailed
	reason := cause.Error()

	switch {
	case errors.Is(cause, context.Canceled):
		reason = "cancelled"
	case transcribed:
		status = conversation.StatusPartial
	}

	turn := conversation.Turn{
		ID:          turnID,
		UserText:    userText,
		ReplyText:   replyText,
		Status:      status,
		FailedStage: string(failedAt),
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	state.Append(turn)

	o.metrics.RecordStageFailure(string(failedAt), failureReason(cause))
	o.metrics.RecordTurnCompleted(string(status), time.Since(turnStart).Seconds())

	o.logger.Warn("Turn failed",
		slog.String("turn_id", turnID),
		slog.String("session_id", sessionID),
		slog.String("stage", string(failedAt)),
		slog.String("status", string(status)),
		slog.String("reason", reason),
	)

	return &TurnResult{
		TurnID:      turnID,
		SessionID:   sessionID,
		Status:      status,
		UserText:    userText,
		ReplyText:   replyText,
		FailedStage: failedAt,
		Reason:      reason,
		Trace:       mach.trace,
	}
}

// failureReason buckets an error for metrics labels.
func failureReason(err error) string {
	var timeoutErr *StageTimeoutError
	var genErr *llm.GenerationError

	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &genErr):
		return string(genErr.Class)
	default:
		return "error"
	}
}
