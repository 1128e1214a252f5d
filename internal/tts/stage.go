package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/audio"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/model"
)

// SynthesisError indicates the synthesizer backend failed.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Request carries one synthesis call's parameters.
type Request struct {
	Text    string
	VoiceID string
	// Speed scales playback rate; 1.0 is normal. High-performance mode
	// floors this at 1.2.
	Speed float64
}

// Synthesizer is the text-to-speech capability contract. Implementations
// are selected through the model registry.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*audio.Buffer, error)
}

// StageConfig contains synthesis stage parameters.
type StageConfig struct {
	Model        model.Config
	DefaultVoice string
	// OutputRate is the sample rate of produced audio; it is also the
	// codec's encode target.
	OutputRate int
	// HighPerformanceMinSpeed is the speed floor applied when a caller
	// requests high-performance mode.
	HighPerformanceMinSpeed float64
}

// Stage turns reply text into audio buffers.
type Stage struct {
	registry *model.Registry
	cfg      StageConfig
	logger   *slog.Logger
}

// NewStage creates a synthesis stage backed by the registry.
func NewStage(registry *model.Registry, cfg StageConfig, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutputRate <= 0 {
		cfg.OutputRate = 24000
	}
	if cfg.HighPerformanceMinSpeed <= 0 {
		cfg.HighPerformanceMinSpeed = 1.2
	}

	return &Stage{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// EffectiveSpeed resolves the playback speed for a request, applying the
// high-performance floor when asked.
func (s *Stage) EffectiveSpeed(speed float64, highPerformance bool) float64 {
	if speed <= 0 {
		speed = 1.0
	}
	if highPerformance && speed < s.cfg.HighPerformanceMinSpeed {
		speed = s.cfg.HighPerformanceMinSpeed
	}
	return speed
}

// Synthesize converts reply text into an audio buffer. Empty or
// whitespace-only text yields a zero-duration buffer without invoking
// the model.
func (s *Stage) Synthesize(ctx context.Context, text, voiceID string, speed float64) (*audio.Buffer, error) {
	if strings.TrimSpace(text) == "" {
		s.logger.Debug("Empty reply text, producing silent buffer")
		return audio.NewSilentBuffer(s.cfg.OutputRate), nil
	}

	if voiceID == "" {
		voiceID = s.cfg.DefaultVoice
	}
	if speed <= 0 {
		speed = 1.0
	}

	handle, err := s.registry.Acquire(ctx, model.KindSynthesizer, s.cfg.Model)
	if err != nil {
		return nil, err
	}

	var buf *audio.Buffer
	doErr := handle.Do(func(capability any) error {
		synthesizer, ok := capability.(Synthesizer)
		if !ok {
			return fmt.Errorf("capability %T does not implement Synthesizer", capability)
		}
		var serr error
		buf, serr = synthesizer.Synthesize(ctx, Request{
			Text:    text,
			VoiceID: voiceID,
			Speed:   speed,
		})
		return serr
	})
	if doErr != nil {
		return nil, &SynthesisError{Err: doErr}
	}

	s.logger.Debug("Synthesis complete",
		slog.String("voice", voiceID),
		slog.Duration("audio_duration", buf.Duration()),
	)

	return buf, nil
}
