package handlers

import (
	"context"
	"net/http"

	"chat-sync-engine/internal/middleware"
	"chat-sync-engine/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler streams conversation snapshots and action results
type WebSocketHandler struct {
	base
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Origins are checked
// by checkOrigin; nil accepts every origin.
func NewWebSocketHandler(sessions *services.Registry, checkOrigin func(r *http.Request) bool) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		base:     base{sessions: sessions},
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// Stream handles GET /api/v1/groups/{group_id}/stream. Opening a stream
// makes group_id the observed conversation of the caller; a stream for an
// older group ends with a stream_closed frame.
func (h *WebSocketHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "group_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	session, peer := h.sessions.Connect(userID, conn)
	defer h.sessions.Disconnect(userID, peer)

	log.Info().Str("user_id", userID).Str("group_id", groupID).Msg("WebSocket connection established")

	// Clients send nothing; reading notices them going away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
				}
				return
			}
		}
	}()

	if err := session.Stream(ctx, peer, groupID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("group_id", groupID).Msg("Stream ended")
	}
}
