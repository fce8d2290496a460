package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/services"
)

type ChatHandler struct {
	convs    *services.ConversationService
	validate *validator.Validate
	log      zerolog.Logger
}

func NewChatHandler(convs *services.ConversationService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		convs:    convs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("handler", "conversations").Logger(),
	}
}

type CreateConversationRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
}

type ChatRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	conv, err := h.convs.Create(r.Context(), req.DocumentID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SendMessage answers a question and stores the turn.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, h.validate, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	id := chi.URLParam(r, "id")
	turn, err := h.convs.Send(r.Context(), id, req.Question)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{ConversationID: id, Answer: turn.Answer.Content})
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.convs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
