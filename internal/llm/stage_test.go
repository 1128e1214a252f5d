package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/model"
)

type fakeGenerator struct {
	reply    string
	err      error
	calls    int
	lastMsgs []Message
}

func (f *fakeGenerator) Generate(ctx context.Context, system string, messages []Message) (string, error) {
	f.calls++
	f.lastMsgs = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestStage(t *testing.T, gen Generator) *Stage {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	registry := model.NewRegistry(logger, map[model.Kind]model.Loader{
		model.KindGenerator: func(ctx context.Context, cfg model.Config) (model.LoadResult, error) {
			return model.LoadResult{Capability: gen, Reentrant: true}, nil
		},
	})

	return NewStage(registry, StageConfig{
		Model:             model.Config{ModelID: "gpt-4o-mini", Device: "api"},
		SystemPrompt:      "You are a helpful voice assistant.",
		HistoryCharBudget: 4000,
	}, logger)
}

func TestGenerateReply(t *testing.T) {
	fake := &fakeGenerator{reply: "hi there"}
	stage := newTestStage(t, fake)

	reply, err := stage.Generate(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if reply != "hi there" {
		t.Errorf("Expected reply %q, got %q", "hi there", reply)
	}
	if fake.calls != 1 {
		t.Errorf("Expected 1 generator call, got %d", fake.calls)
	}
}

func TestGenerateEmptyInputShortCircuits(t *testing.T) {
	fake := &fakeGenerator{reply: "should not appear"}
	stage := newTestStage(t, fake)

	for _, input := range []string{"", "   ", "\n\t"} {
		reply, err := stage.Generate(context.Background(), input, nil)
		if err != nil {
			t.Fatalf("Generate(%q) failed: %v", input, err)
		}

		if reply != DefaultClarificationReply {
			t.Errorf("Expected clarification reply for %q, got %q", input, reply)
		}
	}

	if fake.calls != 0 {
		t.Errorf("Expected no generator calls for empty input, got %d", fake.calls)
	}
}

func TestGenerateIncludesHistory(t *testing.T) {
	fake := &fakeGenerator{reply: "ok"}
	stage := newTestStage(t, fake)

	history := []conversation.Turn{
		{UserText: "first question", ReplyText: "first answer", Status: conversation.StatusOK},
	}

	if _, err := stage.Generate(context.Background(), "second question", history); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(fake.lastMsgs) != 3 {
		t.Fatalf("Expected 3 messages (pair + new), got %d", len(fake.lastMsgs))
	}
	if fake.lastMsgs[0].Content != "first question" {
		t.Errorf("Expected history included, first message %q", fake.lastMsgs[0].Content)
	}
}

func TestGeneratePropagatesClassifiedError(t *testing.T) {
	fake := &fakeGenerator{err: &GenerationError{Class: ClassContent, Err: errors.New("refused")}}
	stage := newTestStage(t, fake)

	_, err := stage.Generate(context.Background(), "hello", nil)

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("Expected GenerationError, got %v", err)
	}
	if genErr.Class != ClassContent {
		t.Errorf("Expected content class preserved, got %s", genErr.Class)
	}
	if genErr.Retryable() {
		t.Error("Content-class errors must not be retryable")
	}
}

func TestGenerateWrapsUnclassifiedError(t *testing.T) {
	fake := &fakeGenerator{err: errors.New("connection reset")}
	stage := newTestStage(t, fake)

	_, err := stage.Generate(context.Background(), "hello", nil)

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("Expected GenerationError, got %v", err)
	}
	if !genErr.Retryable() {
		t.Error("Unclassified transport errors should be network class")
	}
}
