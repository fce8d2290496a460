package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
	maxTokens int32
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, maxTokens int) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, maxTokens: int32(maxTokens)}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// geminiRole maps stored roles onto the two roles Gemini chat history accepts.
func geminiRole(r models.MessageRole) string {
	if r == models.RoleAssistant {
		return "model"
	}
	return "user"
}

func geminiHistory(history []models.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		out = append(out, &genai.Content{
			Role:  geminiRole(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return out
}

func (g *GeminiLLM) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if req.SystemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	if g.maxTokens > 0 {
		m.SetMaxOutputTokens(g.maxTokens)
	}

	cs := m.StartChat()
	cs.History = geminiHistory(req.History)

	resp, err := cs.SendMessage(ctx, genai.Text(req.Question))
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %w", core.ErrGeneration, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", core.ErrGeneration)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.GenerationClient = (*GeminiLLM)(nil)
