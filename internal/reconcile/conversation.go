package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/metrics"
	"chat-sync-engine/internal/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Snapshot is what the UI may render for a conversation at one point in time
type Snapshot struct {
	GroupID string               `json:"group_id"`
	Version uint64               `json:"version"`
	Items   []models.DisplayItem `json:"items"`
	Group   *models.Group        `json:"group,omitempty"`
	chat.Verdict
	// Arrived lists messages from others first seen by the tick that
	// produced this snapshot.
	Arrived []models.Message `json:"arrived,omitempty"`
}

// Conversation is one observed group: its message store, the latest group
// metadata and the polling loop that refreshes both.
type Conversation struct {
	GroupID string

	userID  string
	fetcher Fetcher
	opts    Options
	store   *chat.Store
	logger  zerolog.Logger

	mu      sync.Mutex
	group   *models.Group
	last    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
	stopped bool

	refresh chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

func newConversation(groupID, userID string, fetcher Fetcher, opts Options) *Conversation {
	return &Conversation{
		GroupID: groupID,
		userID:  userID,
		fetcher: fetcher,
		opts:    opts,
		store:   chat.NewStore(opts.PendingTTL),
		logger:  log.With().Str("component", "reconcile").Str("group_id", groupID).Logger(),
		subs:    make(map[int]chan Snapshot),
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (c *Conversation) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.opts.Metrics.LoopStarted()
	go c.run(ctx)
}

func (c *Conversation) run(ctx context.Context) {
	defer close(c.done)
	defer c.opts.Metrics.LoopStopped()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		case <-c.refresh:
			c.tick(ctx)
		}
	}
}

func (c *Conversation) tick(ctx context.Context) {
	started := time.Now()

	tickCtx, cancel := context.WithTimeout(ctx, c.opts.TickTimeout)
	defer cancel()

	group, msgs, err := c.fetch(tickCtx)
	if err != nil {
		if ctx.Err() != nil {
			c.opts.Metrics.ObserveTick(metrics.TickDiscarded, time.Since(started), 0)
			return
		}
		c.logger.Debug().Err(err).Msg("Reconciliation tick skipped")
		c.opts.Metrics.ObserveTick(metrics.TickFailed, time.Since(started), 0)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || ctx.Err() != nil {
		c.opts.Metrics.ObserveTick(metrics.TickDiscarded, time.Since(started), 0)
		return
	}
	arrived := c.store.Replace(msgs)
	c.group = group.Clone()
	c.publishLocked(arrived)
	c.opts.Metrics.ObserveTick(metrics.TickOK, time.Since(started), len(arrived))
}

func (c *Conversation) fetch(ctx context.Context) (*models.Group, []models.Message, error) {
	group, err := c.fetcher.GetGroupDetails(ctx, c.GroupID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get group details: %w", err)
	}
	if group == nil {
		return nil, nil, fmt.Errorf("group %s not found", c.GroupID)
	}
	msgs, err := c.fetcher.GetMessages(ctx, c.GroupID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return group, msgs, nil
}

// publishLocked derives a new snapshot and hands it to every subscriber.
// Each subscriber channel holds only the latest snapshot.
func (c *Conversation) publishLocked(arrived []models.Message) {
	snap := Snapshot{
		GroupID: c.GroupID,
		Version: c.last.Version + 1,
		Items:   chat.Display(c.store.Messages()),
		Group:   c.group.Clone(),
		Verdict: chat.Evaluate(c.group, c.userID),
		Arrived: arrived,
	}
	c.last = snap
	for _, ch := range c.subs {
		offer(ch, snap)
	}
}

func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Store returns the conversation's message store
func (c *Conversation) Store() *chat.Store {
	return c.store
}

// Group returns a copy of the latest group metadata, or nil before the
// first successful tick
func (c *Conversation) Group() *models.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.group.Clone()
}

// Verdict evaluates the permission gate against the latest group metadata
func (c *Conversation) Verdict() chat.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.Evaluate(c.group, c.userID)
}

// SetGroup installs group metadata returned by a mutation and republishes
func (c *Conversation) SetGroup(g *models.Group) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.group = g.Clone()
	c.publishLocked(nil)
}

// Republish pushes a new snapshot after the store was changed outside a tick
func (c *Conversation) Republish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.publishLocked(nil)
}

// Snapshot returns the latest published snapshot
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Refresh asks the loop for an immediate tick. Requests made while one is
// already queued are coalesced.
func (c *Conversation) Refresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel carrying the latest snapshot and a function
// that cancels the subscription. The channel is closed when the
// subscription is cancelled or the conversation stops.
func (c *Conversation) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.stopped {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	if c.last.Version > 0 {
		ch <- c.last
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Stopped reports whether Stop was called
func (c *Conversation) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Stop cancels the loop and waits for it to exit. Results of a tick still
// in flight are discarded.
func (c *Conversation) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.stopped = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.cancel()
	<-c.done
	c.logger.Debug().Msg("Conversation loop stopped")
}
