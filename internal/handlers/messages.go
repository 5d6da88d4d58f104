package handlers

import (
	"net/http"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// MessageHandler handles message mutations
type MessageHandler struct {
	base
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(sessions *services.Registry) *MessageHandler {
	return &MessageHandler{base{sessions: sessions}}
}

// SendMessage handles POST /api/v1/groups/{group_id}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	var draft chat.Draft
	if !decode(w, r, &draft) {
		return
	}

	msg, err := h.session(r).Actions.SendMessage(r.Context(), groupID, draft)
	if err != nil {
		respondActionError(w, r, actions.ActionSend, err)
		return
	}

	log.Info().
		Str("group_id", groupID).
		Str("message_id", msg.ID).
		Str("type", string(msg.Kind)).
		Msg("Message sent")

	respondJSON(w, http.StatusCreated, msg)
}

// ReactRequest represents the request body for adding a reaction
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// React handles POST /api/v1/messages/{message_id}/reactions
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	var req ReactRequest
	if !decode(w, r, &req) {
		return
	}

	reaction, err := h.session(r).Actions.React(r.Context(), chi.URLParam(r, "message_id"), req.Emoji)
	if err != nil {
		respondActionError(w, r, actions.ActionReact, err)
		return
	}
	respondJSON(w, http.StatusCreated, reaction)
}

// VoteRequest represents the request body for voting on a poll
type VoteRequest struct {
	OptionID string `json:"option_id"`
}

// Vote handles POST /api/v1/messages/{message_id}/votes
func (h *MessageHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if !decode(w, r, &req) {
		return
	}

	poll, err := h.session(r).Actions.Vote(r.Context(), chi.URLParam(r, "message_id"), req.OptionID)
	if err != nil {
		respondActionError(w, r, actions.ActionVote, err)
		return
	}
	respondJSON(w, http.StatusOK, poll)
}
