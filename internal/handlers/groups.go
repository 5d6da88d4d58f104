package handlers

import (
	"net/http"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/services"

	"github.com/go-chi/chi/v5"
)

// GroupHandler handles group management
type GroupHandler struct {
	base
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(sessions *services.Registry) *GroupHandler {
	return &GroupHandler{base{sessions: sessions}}
}

// Close handles POST /api/v1/groups/{group_id}/close
func (h *GroupHandler) Close(w http.ResponseWriter, r *http.Request) {
	g, err := h.session(r).Actions.CloseGroup(r.Context(), chi.URLParam(r, "group_id"))
	if err != nil {
		respondActionError(w, r, actions.ActionClose, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// Reopen handles POST /api/v1/groups/{group_id}/reopen
func (h *GroupHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	g, err := h.session(r).Actions.ReopenGroup(r.Context(), chi.URLParam(r, "group_id"))
	if err != nil {
		respondActionError(w, r, actions.ActionReopen, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// DriveLinkRequest represents the request body for setting the drive link.
// A null link clears it.
type DriveLinkRequest struct {
	DriveLink *string `json:"drive_link"`
}

// SetDriveLink handles PUT /api/v1/groups/{group_id}/drive-link
func (h *GroupHandler) SetDriveLink(w http.ResponseWriter, r *http.Request) {
	var req DriveLinkRequest
	if !decode(w, r, &req) {
		return
	}

	g, err := h.session(r).Actions.SetDriveLink(r.Context(), chi.URLParam(r, "group_id"), req.DriveLink)
	if err != nil {
		respondActionError(w, r, actions.ActionDriveLink, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}
