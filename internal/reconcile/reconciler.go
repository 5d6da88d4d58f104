// Package reconcile keeps the observed conversation in sync with the server
// by polling it on a fixed interval.
package reconcile

import (
	"context"
	"sync"
	"time"

	"chat-sync-engine/internal/metrics"
	"chat-sync-engine/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is the polling period used when Options.Interval is zero
const DefaultInterval = 3 * time.Second

// Fetcher is the read side of the API collaborator
type Fetcher interface {
	GetGroupDetails(ctx context.Context, groupID string) (*models.Group, error)
	GetMessages(ctx context.Context, groupID string) ([]models.Message, error)
}

// Options configures the polling loops
type Options struct {
	Interval time.Duration
	// TickTimeout bounds the fetches of one tick. Defaults to Interval.
	TickTimeout time.Duration
	// PendingTTL drops optimistic sends the server never confirmed. Zero
	// keeps them until confirmed or dropped.
	PendingTTL time.Duration
	Metrics    *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = o.Interval
	}
	return o
}

// Reconciler owns at most one running loop for the conversation the user is
// currently looking at.
type Reconciler struct {
	fetcher Fetcher
	userID  string
	opts    Options

	mu      sync.Mutex
	current *Conversation
}

// New creates a reconciler for userID
func New(fetcher Fetcher, userID string, opts Options) *Reconciler {
	return &Reconciler{
		fetcher: fetcher,
		userID:  userID,
		opts:    opts.withDefaults(),
	}
}

// Observe starts polling groupID. A loop for another group is stopped, and
// has exited, before the new loop starts. Observing the group already being
// polled returns the running conversation.
func (r *Reconciler) Observe(groupID string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		if r.current.GroupID == groupID && !r.current.Stopped() {
			return r.current
		}
		r.current.Stop()
	}

	c := newConversation(groupID, r.userID, r.fetcher, r.opts)
	c.start()
	r.current = c

	log.Debug().Str("user_id", r.userID).Str("group_id", groupID).Msg("Observing conversation")
	return c
}

// Current returns the observed conversation, or nil
func (r *Reconciler) Current() *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Conversation returns the running conversation for groupID, or nil when
// another group (or none) is observed
func (r *Reconciler) Conversation(groupID string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.GroupID != groupID || r.current.Stopped() {
		return nil
	}
	return r.current
}

// Stop stops the running loop and waits for it to exit
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.Stop()
		r.current = nil
	}
}
