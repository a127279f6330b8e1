package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client is minimal subset of openai.Client used by the gateway; it is easy to mock in tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Role tags a Turn.
type Role string

const (
	RoleSystem    Role = openai.ChatMessageRoleSystem
	RoleUser      Role = openai.ChatMessageRoleUser
	RoleAssistant Role = openai.ChatMessageRoleAssistant
)

// Turn is one role-tagged unit of dialogue submitted to the model.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func toOpenAI(turns []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}
	return out
}
