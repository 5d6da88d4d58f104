// Package handlers exposes the sync sessions over HTTP and websocket
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/middleware"
	"chat-sync-engine/internal/repository"
	"chat-sync-engine/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor maps action errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, actions.ErrNotPermitted),
		errors.Is(err, repository.ErrForbidden),
		errors.Is(err, repository.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, actions.ErrNoCandidates):
		return http.StatusConflict
	case errors.Is(err, actions.ErrRejected), errors.Is(err, actions.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondActionError logs err and sends it with its mapped status
func respondActionError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("user_id", middleware.GetUserID(r.Context())).
		Str("action", action).
		Int("status", status).
		Msg("Action failed")
	respondError(w, err.Error(), status)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// base is embedded by every handler that acts on the caller's session
type base struct {
	sessions *services.Registry
}

func (b base) session(r *http.Request) *services.Session {
	return b.sessions.Get(middleware.GetUserID(r.Context()))
}
