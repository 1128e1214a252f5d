package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/model"
)

// DefaultClarificationReply is returned for silent turns without invoking
// the model.
const DefaultClarificationReply = "I didn't catch that. Could you say it again?"

// Generator is the text generation capability contract. Implementations
// are selected through the model registry.
type Generator interface {
	Generate(ctx context.Context, system string, messages []Message) (string, error)
}

// StageConfig contains generation stage parameters.
type StageConfig struct {
	Model model.Config
	// SystemPrompt is the fixed preamble prepended to every request.
	SystemPrompt string
	// HistoryCharBudget bounds the characters of prior turns included in
	// the prompt; oldest turns are dropped first. Zero disables the bound.
	HistoryCharBudget int
	// ClarificationReply overrides the reply used for silent turns.
	ClarificationReply string
}

// Stage turns user text plus history into a reply. It never writes to the
// conversation state; the orchestrator owns history updates.
type Stage struct {
	registry *model.Registry
	cfg      StageConfig
	logger   *slog.Logger
}

// NewStage creates a generation stage backed by the registry.
func NewStage(registry *model.Registry, cfg StageConfig, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClarificationReply == "" {
		cfg.ClarificationReply = DefaultClarificationReply
	}

	return &Stage{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// ClarificationReply returns the fixed reply used for silent turns.
func (s *Stage) ClarificationReply() string {
	return s.cfg.ClarificationReply
}

// Generate produces a reply for userText given the completed history.
// Empty or whitespace-only input short-circuits to the clarification reply
// without touching the model.
func (s *Stage) Generate(ctx context.Context, userText string, history []conversation.Turn) (string, error) {
	if strings.TrimSpace(userText) == "" {
		s.logger.Debug("Empty user text, returning clarification reply")
		return s.cfg.ClarificationReply, nil
	}

	handle, err := s.registry.Acquire(ctx, model.KindGenerator, s.cfg.Model)
	if err != nil {
		return "", err
	}

	messages := BuildMessages(history, userText, s.cfg.HistoryCharBudget)

	var reply string
	doErr := handle.Do(func(capability any) error {
		generator, ok := capability.(Generator)
		if !ok {
			return fmt.Errorf("capability %T does not implement Generator", capability)
		}
		var gerr error
		reply, gerr = generator.Generate(ctx, s.cfg.SystemPrompt, messages)
		return gerr
	})
	if doErr != nil {
		var genErr *GenerationError
		if errors.As(doErr, &genErr) {
			return "", doErr
		}
		return "", &GenerationError{Class: ClassNetwork, Err: doErr}
	}

	s.logger.Debug("Reply generated",
		slog.Int("history_messages", len(messages)-1),
		slog.Int("reply_chars", len(reply)),
	)

	return reply, nil
}
