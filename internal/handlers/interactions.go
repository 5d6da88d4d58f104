package handlers

import (
	"net/http"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/services"

	"github.com/go-chi/chi/v5"
)

// InteractionHandler handles the activity feed
type InteractionHandler struct {
	base
}

// NewInteractionHandler creates a new interaction handler
func NewInteractionHandler(sessions *services.Registry) *InteractionHandler {
	return &InteractionHandler{base{sessions: sessions}}
}

// List handles GET /api/v1/interactions
func (h *InteractionHandler) List(w http.ResponseWriter, r *http.Request) {
	view, err := h.session(r).Interactions(r.Context())
	if err != nil {
		respondActionError(w, r, "interactions", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Seen handles POST /api/v1/interactions/{post_id}/seen
func (h *InteractionHandler) Seen(w http.ResponseWriter, r *http.Request) {
	view, err := h.session(r).MarkSeen(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		respondActionError(w, r, "mark_seen", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ToggleResponse reports the expansion state of a comment row
type ToggleResponse struct {
	NotificationID string `json:"notification_id"`
	Expanded       bool   `json:"expanded"`
}

// Toggle handles POST /api/v1/interactions/{post_id}/comments/{notification_id}/toggle
func (h *InteractionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notification_id")
	expanded := h.session(r).Tracker.ToggleComment(id)
	respondJSON(w, http.StatusOK, ToggleResponse{NotificationID: id, Expanded: expanded})
}

// CreateGroupRequest represents the request body for starting a group
// from a post's activity
type CreateGroupRequest struct {
	Name string `json:"name"`
}

// CreateGroup handles POST /api/v1/interactions/{post_id}/group
func (h *InteractionHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decode(w, r, &req) {
		return
	}

	s := h.session(r)
	summary, err := s.Actions.Summary(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		respondActionError(w, r, actions.ActionCreateGroup, err)
		return
	}
	g, err := s.Actions.CreateGroupFromInteractions(r.Context(), summary, req.Name)
	if err != nil {
		respondActionError(w, r, actions.ActionCreateGroup, err)
		return
	}
	respondJSON(w, http.StatusCreated, g)
}

// CommunityRequest names the announcement group to invite actors into
type CommunityRequest struct {
	GroupID string `json:"group_id"`
}

// AddToCommunity handles POST /api/v1/interactions/{post_id}/community
func (h *InteractionHandler) AddToCommunity(w http.ResponseWriter, r *http.Request) {
	var req CommunityRequest
	if !decode(w, r, &req) {
		return
	}
	if req.GroupID == "" {
		respondError(w, "group_id is required", http.StatusBadRequest)
		return
	}

	s := h.session(r)
	summary, err := s.Actions.Summary(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		respondActionError(w, r, actions.ActionAddCommunity, err)
		return
	}
	g, err := s.Actions.AddToCommunity(r.Context(), req.GroupID, summary)
	if err != nil {
		respondActionError(w, r, actions.ActionAddCommunity, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}
