package stt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/audio"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/model"
)

// TranscriptionError indicates a model-internal transcription failure.
// Silence is not an error; it yields an empty Utterance instead.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Result is the raw transcriber output.
type Result struct {
	Text       string
	Confidence float32
	Language   string
}

// Transcriber is the speech-to-text capability contract. Implementations
// are selected through the model registry.
type Transcriber interface {
	Transcribe(ctx context.Context, buf *audio.Buffer) (Result, error)
}

// Utterance is the transcript of one user audio input. Immutable once
// created.
type Utterance struct {
	Text           string
	Confidence     float32
	Empty          bool
	SourceDuration time.Duration
}

// StageConfig contains transcription stage parameters.
type StageConfig struct {
	Model model.Config
	// SilenceRMS is the normalized RMS amplitude below which input is
	// treated as silence and the model is not invoked.
	SilenceRMS float64
	// MinDuration is the shortest audio considered worth transcribing.
	MinDuration time.Duration
}

// Stage turns audio buffers into utterances. It is stateless with respect
// to conversation history; the model handle comes from the shared registry.
type Stage struct {
	registry *model.Registry
	cfg      StageConfig
	logger   *slog.Logger
}

// NewStage creates a transcription stage backed by the registry.
func NewStage(registry *model.Registry, cfg StageConfig, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SilenceRMS <= 0 {
		cfg.SilenceRMS = 0.01
	}

	return &Stage{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Transcribe converts an audio buffer into an utterance. Silent or
// near-empty audio yields an Utterance with Empty set, not an error.
func (s *Stage) Transcribe(ctx context.Context, buf *audio.Buffer) (Utterance, error) {
	duration := buf.Duration()

	if buf.Empty() || duration < s.cfg.MinDuration || buf.RMS() < s.cfg.SilenceRMS {
		s.logger.Debug("Input classified as silence",
			slog.Duration("duration", duration),
			slog.Float64("rms", buf.RMS()),
		)
		return Utterance{Empty: true, SourceDuration: duration}, nil
	}

	handle, err := s.registry.Acquire(ctx, model.KindTranscriber, s.cfg.Model)
	if err != nil {
		return Utterance{}, err
	}

	var result Result
	doErr := handle.Do(func(capability any) error {
		transcriber, ok := capability.(Transcriber)
		if !ok {
			return fmt.Errorf("capability %T does not implement Transcriber", capability)
		}
		var terr error
		result, terr = transcriber.Transcribe(ctx, buf)
		return terr
	})
	if doErr != nil {
		return Utterance{}, &TranscriptionError{Err: doErr}
	}

	utterance := Utterance{
		Text:           result.Text,
		Confidence:     result.Confidence,
		Empty:          result.Text == "",
		SourceDuration: duration,
	}

	s.logger.Debug("Transcription complete",
		slog.Duration("duration", duration),
		slog.Bool("empty", utterance.Empty),
		slog.Float64("confidence", float64(result.Confidence)),
	)

	return utterance, nil
}
