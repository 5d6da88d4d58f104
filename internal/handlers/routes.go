package handlers

import (
	"net/http"

	"chat-sync-engine/internal/services"

	"github.com/go-chi/chi/v5"
)

// Mount registers the authenticated /api/v1 routes on r. The caller's
// middleware must put the user id in the request context.
func Mount(r chi.Router, sessions *services.Registry, checkOrigin func(*http.Request) bool) {
	messages := NewMessageHandler(sessions)
	groups := NewGroupHandler(sessions)
	plans := NewPlanHandler(sessions)
	feed := NewInteractionHandler(sessions)
	ws := NewWebSocketHandler(sessions, checkOrigin)

	r.Route("/groups/{group_id}", func(r chi.Router) {
		r.Get("/stream", ws.Stream)
		r.Post("/messages", messages.SendMessage)
		r.Post("/close", groups.Close)
		r.Post("/reopen", groups.Reopen)
		r.Put("/drive-link", groups.SetDriveLink)
	})
	r.Post("/messages/{message_id}/reactions", messages.React)
	r.Post("/messages/{message_id}/votes", messages.Vote)

	r.Get("/plans", plans.Plans)
	r.Route("/plans/{plan_id}", func(r chi.Router) {
		r.Post("/registrations", plans.Register)
		r.Get("/guests", plans.Guests)
		r.Get("/review", plans.Review)
		r.Post("/review", plans.MarkReviewed)
	})

	r.Get("/interactions", feed.List)
	r.Route("/interactions/{post_id}", func(r chi.Router) {
		r.Post("/seen", feed.Seen)
		r.Post("/comments/{notification_id}/toggle", feed.Toggle)
		r.Post("/group", feed.CreateGroup)
		r.Post("/community", feed.AddToCommunity)
	})
}
