package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator backs the generator capability with the OpenAI chat
// completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator for the given API key and model.
func NewOpenAIGenerator(apiKey, modelID string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if modelID == "" {
		return nil, fmt.Errorf("model ID cannot be empty")
	}

	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  modelID,
	}, nil
}

// Generate sends the assembled messages and returns the reply text.
// Failures are reported as GenerationError with a network or content class.
func (g *OpenAIGenerator) Generate(ctx context.Context, system string, messages []Message) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: chatMessages,
	})
	if err != nil {
		return "", &GenerationError{Class: classifyOpenAIError(err), Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &GenerationError{
			Class: ClassContent,
			Err:   fmt.Errorf("model returned no choices"),
		}
	}

	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError maps an API failure onto the retry taxonomy.
// Rate limits and server faults are transport problems; other API
// rejections mean the request itself was refused.
func classifyOpenAIError(err error) ErrorClass {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return ClassNetwork
		}
		return ClassContent
	}

	// Transport errors, timeouts, cancellations.
	return ClassNetwork
}
