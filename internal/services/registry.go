// Package services keeps the per-user sync sessions and the websocket
// streams they publish to.
package services

import (
	"sync"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/interactions"
	"chat-sync-engine/internal/metrics"
	"chat-sync-engine/internal/profile"
	"chat-sync-engine/internal/reconcile"

	"github.com/rs/zerolog/log"
)

// ClientFactory returns the API collaborator acting as userID
type ClientFactory func(userID string) actions.Client

// Options configures new sessions
type Options struct {
	Codec   *chat.Codec
	Flags   actions.FlagStore
	Metrics *metrics.Metrics
	Sync    reconcile.Options
}

// Registry creates sessions on demand and tears them down when the last
// stream of their user disconnects
type Registry struct {
	newClient ClientFactory
	profiles  *profile.Cache
	hub       *WSHub
	opts      Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a session registry
func NewRegistry(newClient ClientFactory, profiles *profile.Cache, hub *WSHub, opts Options) *Registry {
	if opts.Codec == nil {
		opts.Codec = chat.NewCodec(true)
	}
	opts.Sync.Metrics = opts.Metrics
	return &Registry{
		newClient: newClient,
		profiles:  profiles,
		hub:       hub,
		opts:      opts,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the session of userID, creating it if needed
func (r *Registry) Get(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(userID)
}

func (r *Registry) getLocked(userID string) *Session {
	if s, ok := r.sessions[userID]; ok {
		return s
	}

	client := r.newClient(userID)
	rec := reconcile.New(client, userID, r.opts.Sync)
	coord := actions.New(client, userID, rec, r.opts.Codec, actions.Options{
		Flags:   r.opts.Flags,
		Metrics: r.opts.Metrics,
	})
	coord.OnResult(func(res actions.Result) {
		msg := WSMessage{Type: MsgResult, GroupID: res.GroupID, Data: res}
		if err := r.hub.SendToUser(userID, msg); err != nil {
			log.Debug().Err(err).Str("user_id", userID).Str("action", res.Action).Msg("Action result not delivered")
		}
	})

	s := &Session{
		UserID:     userID,
		Reconciler: rec,
		Actions:    coord,
		Tracker:    interactions.NewTracker(),
		profiles:   r.profiles,
	}
	r.sessions[userID] = s
	r.opts.Metrics.SessionOpened()
	log.Info().Str("user_id", userID).Msg("Session opened")
	return s
}

// Connect registers a stream for userID and returns its session
func (r *Registry) Connect(userID string, conn Conn) (*Session, *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getLocked(userID)
	s.peers++
	return s, r.hub.Register(userID, conn)
}

// Disconnect unregisters p. The session is closed once its user has no
// stream left.
func (r *Registry) Disconnect(userID string, p *Peer) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.hub.Unregister(userID, p)
	if ok {
		s.peers--
	}
	release := ok && s.peers <= 0
	if release {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if release {
		s.Close()
		r.opts.Metrics.SessionClosed()
		log.Info().Str("user_id", userID).Msg("Session closed")
	}
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every session and closes every stream
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		r.opts.Metrics.SessionClosed()
	}
	r.hub.Close()
	log.Info().Int("sessions", len(sessions)).Msg("All sessions closed")
}
