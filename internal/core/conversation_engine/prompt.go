package conversation_engine

import (
	"strings"

	"github.com/markdave123-py/docchat/internal/models"
)

const (
	// PassageSeparator sits between retrieved passages in the system prompt.
	PassageSeparator = "\n\n---\n\n"

	// NoContextFallback replaces the passages when retrieval returned nothing.
	NoContextFallback = "No relevant context found."

	systemPromptTemplate = `You are a helpful assistant that answers questions based strictly on the provided document context.
If the answer is not present in the context, say so clearly. Do not make up information.

Document context:
%CONTEXT%
`
)

// BuildSystemPrompt renders the fixed instruction with the retrieved passages.
func BuildSystemPrompt(passages []string) string {
	context := NoContextFallback
	if len(passages) > 0 {
		context = strings.Join(passages, PassageSeparator)
	}
	return strings.Replace(systemPromptTemplate, "%CONTEXT%", context, 1)
}

// WindowHistory returns the last limit messages of stored, oldest first.
func WindowHistory(stored []models.Message, limit int) []models.Message {
	if limit <= 0 {
		return []models.Message{}
	}
	start := max(len(stored)-limit, 0)
	out := make([]models.Message, len(stored)-start)
	copy(out, stored[start:])
	return out
}
