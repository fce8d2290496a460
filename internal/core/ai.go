package core

import (
	"context"

	"github.com/markdave123-py/docchat/internal/models"
)

// GenerationRequest is everything the generation collaborator needs for one reply.
type GenerationRequest struct {
	SystemPrompt string           // instructions plus retrieved passages
	History      []models.Message // oldest first
	Question     string
}

// GenerationClient produces an answer from a remote language model.
// Implementations wrap every upstream failure with ErrGeneration.
type GenerationClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
