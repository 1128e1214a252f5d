package llm

import "github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"

// Message is one chat message in a generation request.
type Message struct {
	Role    string
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// BuildMessages assembles the chat history for a generation request.
// Completed turns are included newest-last; once the combined character
// budget is exceeded, whole turns are dropped oldest-first. Identical
// history always produces identical messages. Turns without a usable
// exchange (failed turns) are skipped.
func BuildMessages(history []conversation.Turn, userText string, charBudget int) []Message {
	type pair struct {
		user      string
		assistant string
		cost      int
	}

	pairs := make([]pair, 0, len(history))
	for _, turn := range history {
		if turn.UserText == "" || turn.ReplyText == "" {
			continue
		}
		pairs = append(pairs, pair{
			user:      turn.UserText,
			assistant: turn.ReplyText,
			cost:      len(turn.UserText) + len(turn.ReplyText),
		})
	}

	// Walk backwards from the newest pair, keeping whole turns that fit.
	// The new user text always occupies budget first.
	remaining := charBudget - len(userText)
	keepFrom := len(pairs)
	if charBudget <= 0 {
		keepFrom = 0 // No budget means no truncation
		remaining = 0
	} else {
		for i := len(pairs) - 1; i >= 0; i-- {
			if pairs[i].cost > remaining {
				break
			}
			remaining -= pairs[i].cost
			keepFrom = i
		}
	}

	messages := make([]Message, 0, (len(pairs)-keepFrom)*2+1)
	for _, p := range pairs[keepFrom:] {
		messages = append(messages,
			Message{Role: RoleUser, Content: p.user},
			Message{Role: RoleAssistant, Content: p.assistant},
		)
	}

	messages = append(messages, Message{Role: RoleUser, Content: userText})
	return messages
}
