package services

import (
	"context"
	"fmt"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/interactions"
	"chat-sync-engine/internal/models"
	"chat-sync-engine/internal/profile"
	"chat-sync-engine/internal/reconcile"

	"github.com/rs/zerolog/log"
)

// Session is the sync state of one connected user
type Session struct {
	UserID     string
	Reconciler *reconcile.Reconciler
	Actions    *actions.Coordinator
	Tracker    *interactions.Tracker

	profiles *profile.Cache
	peers    int
}

// InteractionsView is the activity feed with the profiles of every actor
type InteractionsView struct {
	Items    []interactions.View       `json:"items"`
	Profiles map[string]models.Profile `json:"profiles"`
}

// Stream observes groupID and writes every snapshot to p until ctx ends or
// the conversation stops, which happens when the user switches to another
// group.
func (s *Session) Stream(ctx context.Context, p *Peer, groupID string) error {
	conv := s.Reconciler.Observe(groupID)
	snaps, cancel := conv.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				log.Debug().Str("user_id", s.UserID).Str("group_id", groupID).Msg("Stream closed by conversation switch")
				return p.Send(WSMessage{Type: MsgClosed, GroupID: groupID})
			}
			if err := p.Send(WSMessage{Type: MsgSnapshot, GroupID: groupID, Data: snap}); err != nil {
				return err
			}
		}
	}
}

// Interactions returns the activity feed decorated with badges, expansion
// state and actor profiles
func (s *Session) Interactions(ctx context.Context) (InteractionsView, error) {
	summaries, err := s.Actions.Interactions(ctx)
	if err != nil {
		return InteractionsView{}, err
	}

	var actors []string
	for _, sum := range summaries {
		actors = append(actors, sum.Actors...)
	}
	view := InteractionsView{
		Items:    s.Tracker.Views(summaries),
		Profiles: map[string]models.Profile{},
	}
	if s.profiles != nil {
		view.Profiles = s.profiles.Many(ctx, actors)
	}
	return view, nil
}

// MarkSeen clears the badge of postID and returns its updated view
func (s *Session) MarkSeen(ctx context.Context, postID string) (interactions.View, error) {
	s.Tracker.MarkSeen(postID)
	sum, err := s.Actions.Summary(ctx, postID)
	if err != nil {
		return interactions.View{}, fmt.Errorf("failed to load post %s: %w", postID, err)
	}
	return s.Tracker.Views([]interactions.Summary{sum})[0], nil
}

// Close stops the user's polling loop
func (s *Session) Close() {
	s.Reconciler.Stop()
}
