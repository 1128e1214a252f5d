package llm

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"
)

func makeHistory(n int) []conversation.Turn {
	turns := make([]conversation.Turn, n)
	for i := range turns {
		turns[i] = conversation.Turn{
			ID:        fmt.Sprintf("t%d", i+1),
			UserText:  fmt.Sprintf("user message %d", i+1),
			ReplyText: fmt.Sprintf("assistant reply %d", i+1),
			Status:    conversation.StatusOK,
			CreatedAt: time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
		}
	}
	return turns
}

func TestBuildMessagesIncludesAllWithinBudget(t *testing.T) {
	history := makeHistory(3)
	messages := BuildMessages(history, "new question", 10000)

	// 3 turn pairs + the new user message.
	if len(messages) != 7 {
		t.Fatalf("Expected 7 messages, got %d", len(messages))
	}

	if messages[0].Content != "user message 1" {
		t.Errorf("Expected oldest turn first, got %q", messages[0].Content)
	}

	last := messages[len(messages)-1]
	if last.Role != RoleUser || last.Content != "new question" {
		t.Errorf("Expected new user text last, got %+v", last)
	}
}

func TestBuildMessagesDropsOldestFirst(t *testing.T) {
	history := makeHistory(10)

	// Budget fits roughly three turn pairs plus the new text.
	var budget int
	for _, turn := range history[7:] {
		budget += len(turn.UserText) + len(turn.ReplyText)
	}
	budget += len("new question")

	messages := BuildMessages(history, "new question", budget)

	// t1 must be dropped before t2: the oldest retained turn is t8.
	if len(messages) != 7 {
		t.Fatalf("Expected 7 messages (3 pairs + user text), got %d", len(messages))
	}

	if messages[0].Content != "user message 8" {
		t.Errorf("Expected oldest retained turn to be t8, got %q", messages[0].Content)
	}

	for _, m := range messages {
		if strings.Contains(m.Content, "message 1 ") || m.Content == "user message 1" {
			t.Errorf("Turn t1 should have been dropped, found %q", m.Content)
		}
	}
}

func TestBuildMessagesDeterministic(t *testing.T) {
	history := makeHistory(10)

	first := BuildMessages(history, "hello", 200)
	for i := 0; i < 20; i++ {
		again := BuildMessages(history, "hello", 200)
		if len(again) != len(first) {
			t.Fatalf("Run %d: message count changed from %d to %d", i, len(first), len(again))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("Run %d: message %d changed from %+v to %+v", i, j, first[j], again[j])
			}
		}
	}
}

func TestBuildMessagesSkipsFailedTurns(t *testing.T) {
	history := []conversation.Turn{
		{UserText: "good turn", ReplyText: "good reply", Status: conversation.StatusOK},
		{UserText: "partial turn", ReplyText: "", Status: conversation.StatusPartial},
		{UserText: "", ReplyText: "", Status: conversation.StatusFailed},
	}

	messages := BuildMessages(history, "next", 10000)

	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages (1 pair + user text), got %d", len(messages))
	}

	if messages[0].Content != "good turn" {
		t.Errorf("Expected only the completed turn, got %q", messages[0].Content)
	}
}

func TestBuildMessagesZeroBudgetKeepsAll(t *testing.T) {
	history := makeHistory(5)
	messages := BuildMessages(history, "q", 0)

	if len(messages) != 11 {
		t.Fatalf("Expected no truncation with zero budget, got %d messages", len(messages))
	}
}

func TestBuildMessagesTightBudget(t *testing.T) {
	history := makeHistory(5)

	// Budget barely covers the user text: every pair is dropped.
	messages := BuildMessages(history, "q", 2)

	if len(messages) != 1 {
		t.Fatalf("Expected only the user message, got %d messages", len(messages))
	}
}
