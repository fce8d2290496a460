package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// OpenAILLM talks to any OpenAI-compatible chat completions endpoint (Groq by default).
type OpenAILLM struct {
	client    *openai.Client
	modelName string
	maxTokens int
}

func NewOpenAILLM(apiKey, baseURL, modelName string, maxTokens int) (*OpenAILLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY not set")
	}
	if modelName == "" {
		return nil, fmt.Errorf("GEN_MODEL not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}

	return &OpenAILLM{
		client:    openai.NewClientWithConfig(cfg),
		modelName: modelName,
		maxTokens: maxTokens,
	}, nil
}

func openAIRole(r models.MessageRole) string {
	if r == models.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// chatMessages lays out system prompt, history oldest first, then the question.
func chatMessages(req core.GenerationRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	for _, m := range req.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Question})
}

func (o *OpenAILLM) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.modelName,
		Messages:  chatMessages(req),
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", core.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", core.ErrGeneration)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ core.GenerationClient = (*OpenAILLM)(nil)
