package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PlanHandler handles event plans and tickets
type PlanHandler struct {
	base
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(sessions *services.Registry) *PlanHandler {
	return &PlanHandler{base{sessions: sessions}}
}

// RegisterRequest represents the optional request body for registering
type RegisterRequest struct {
	PassID *string `json:"pass_id"`
}

// Register handles POST /api/v1/plans/{plan_id}/registrations
func (h *PlanHandler) Register(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan_id")

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reg, err := h.session(r).Actions.Register(r.Context(), planID, req.PassID)
	if err != nil {
		respondActionError(w, r, actions.ActionRegister, err)
		return
	}

	status := http.StatusCreated
	if reg.AlreadyRegistered {
		status = http.StatusOK
	} else {
		log.Info().
			Str("plan_id", planID).
			Str("ticket_id", reg.Ticket.ID).
			Msg("Registered for event")
	}
	respondJSON(w, status, reg)
}

// Guests handles GET /api/v1/plans/{plan_id}/guests
func (h *PlanHandler) Guests(w http.ResponseWriter, r *http.Request) {
	guests, err := h.session(r).Actions.GuestList(r.Context(), chi.URLParam(r, "plan_id"))
	if err != nil {
		respondActionError(w, r, "guest_list", err)
		return
	}
	respondJSON(w, http.StatusOK, guests)
}

// Plans handles GET /api/v1/plans
func (h *PlanHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.session(r).Actions.UserPlans(r.Context())
	if err != nil {
		respondActionError(w, r, "user_plans", err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

// ReviewResponse reports whether a ticket awaits review
type ReviewResponse struct {
	PlanID  string `json:"plan_id"`
	Pending bool   `json:"pending"`
}

// Review handles GET /api/v1/plans/{plan_id}/review
func (h *PlanHandler) Review(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan_id")
	pending, err := h.session(r).Actions.ReviewPending(planID)
	if err != nil {
		respondActionError(w, r, "review_pending", err)
		return
	}
	respondJSON(w, http.StatusOK, ReviewResponse{PlanID: planID, Pending: pending})
}

// MarkReviewed handles POST /api/v1/plans/{plan_id}/review
func (h *PlanHandler) MarkReviewed(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan_id")
	if err := h.session(r).Actions.MarkReviewed(planID); err != nil {
		respondActionError(w, r, actions.ActionMarkReviewed, err)
		return
	}
	respondJSON(w, http.StatusOK, ReviewResponse{PlanID: planID})
}
