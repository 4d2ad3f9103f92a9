package handlers

import (
	"net/http"

	"manuscript-review/internal/service"
)

// MessageHandler relays round messages
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// MessageReplyRequest is the body of a message reply
type MessageReplyRequest struct {
	Text string `json:"text"`
}

// Post sends a message within a round
// @Summary Post round message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Round ID"
// @Param request body service.PostMessageInput true "Message"
// @Success 201 {object} models.Message
// @Router /rounds/{id}/messages [post]
func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.PostMessageInput
	if !decodeJSON(w, r, &in) {
		return
	}
	msg, err := h.messages.Post(r.Context(), actor, id, in)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusCreated, msg)
}

// Count returns the number of messages posted to a round
// @Summary Count round messages
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Round ID"
// @Success 200 {object} map[string]int
// @Router /rounds/{id}/messages/count [get]
func (h *MessageHandler) Count(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	count, err := h.messages.CountByRound(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]int{"count": count})
}

// Respond answers a message
// @Summary Answer message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param request body MessageReplyRequest true "Reply"
// @Success 200 {object} models.Message
// @Failure 409 {object} ErrorResponse "Already answered"
// @Router /messages/{id}/response [post]
func (h *MessageHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req MessageReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.messages.Respond(r.Context(), actor, r.PathValue("id"), req.Text)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, msg)
}
