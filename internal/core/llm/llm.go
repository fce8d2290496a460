package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

// NewGenerationClient builds the client named by LLM_PROVIDER. The caller owns its
// lifecycle; clients that hold connections also implement io.Closer.
func NewGenerationClient(ctx context.Context, cfg *config.Config) (core.GenerationClient, error) {
	switch cfg.LLMProvider {
	case "gemini":
		g, err := NewGeminiLLM(ctx, cfg.LLMAPIKey, cfg.GenModel, cfg.GenMaxTokens)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai", "":
		o, err := NewOpenAILLM(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.GenModel, cfg.GenMaxTokens)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
