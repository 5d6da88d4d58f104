// Package actions performs the user's mutations against the API and folds
// their results back into the observed conversation.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/metrics"
	"chat-sync-engine/internal/models"
	"chat-sync-engine/internal/reconcile"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotPermitted is returned before any network call when the
	// permission gate denies the action
	ErrNotPermitted = errors.New("action not permitted")
	// ErrRejected wraps a failure reported by the API
	ErrRejected = errors.New("action rejected")
	// ErrMalformedResponse is returned when the API reports success
	// without the data the action needs
	ErrMalformedResponse = errors.New("malformed response")
	// ErrNoCandidates is returned when there is nobody left to invite
	ErrNoCandidates = errors.New("no candidates")
)

// Client is the write side of the API collaborator
type Client interface {
	reconcile.Fetcher
	SendMessage(ctx context.Context, groupID, localID, kind string, content json.RawMessage) (*models.Message, error)
	AddMessageReaction(ctx context.Context, messageID, emoji string) (*models.Reaction, error)
	VotePoll(ctx context.Context, messageID, optionID string) (*models.Poll, error)
	CloseGroup(ctx context.Context, groupID string) (*models.Group, error)
	ReopenGroup(ctx context.Context, groupID string) (*models.Group, error)
	SetGroupDriveLink(ctx context.Context, groupID string, link *string) (*models.Group, error)
	CreateGroup(ctx context.Context, name string, members []string) (*models.Group, error)
	AddGroupMembers(ctx context.Context, groupID string, members []string) (*models.Group, error)
	GetGuestList(ctx context.Context, planID string) ([]models.Guest, error)
	HasTicketForPlan(ctx context.Context, planID string) (*models.Ticket, error)
	RegisterForEvent(ctx context.Context, planID string, passID *string) (*models.Ticket, error)
	GetUserPlans(ctx context.Context) ([]models.Plan, error)
	GetInteractions(ctx context.Context) ([]models.InteractionNotification, error)
}

// Conversations gives access to the conversation being observed
type Conversations interface {
	Conversation(groupID string) *reconcile.Conversation
	Current() *reconcile.Conversation
}

// FlagStore persists the ticket review flag
type FlagStore interface {
	Raise(userID, planID, ticketID string) error
	ReviewPending(userID, planID string) (bool, error)
	MarkReviewed(userID, planID string) error
}

// Action names reported in results and metrics
const (
	ActionSend         = "send_message"
	ActionReact        = "react"
	ActionVote         = "vote"
	ActionRegister     = "register"
	ActionClose        = "close_group"
	ActionReopen       = "reopen_group"
	ActionDriveLink    = "set_drive_link"
	ActionCreateGroup  = "create_group"
	ActionAddCommunity = "add_to_community"
	ActionMarkReviewed = "mark_reviewed"
)

// Result reports the outcome of one action to registered observers
type Result struct {
	Action      string `json:"action"`
	GroupID     string `json:"group_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	PlanID      string `json:"plan_id,omitempty"`
	AlreadyDone bool   `json:"already_done,omitempty"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

// Coordinator runs the actions of one user
type Coordinator struct {
	client  Client
	userID  string
	convs   Conversations
	codec   *chat.Codec
	flags   FlagStore
	metrics *metrics.Metrics
	logger  zerolog.Logger

	registrations singleflight.Group

	mu        sync.Mutex
	tickets   map[string]models.Ticket
	observers []func(Result)
}

// Options holds the optional collaborators of a coordinator
type Options struct {
	Flags   FlagStore
	Metrics *metrics.Metrics
}

// New creates a coordinator acting as userID
func New(client Client, userID string, convs Conversations, codec *chat.Codec, opts Options) *Coordinator {
	return &Coordinator{
		client:  client,
		userID:  userID,
		convs:   convs,
		codec:   codec,
		flags:   opts.Flags,
		metrics: opts.Metrics,
		logger:  log.With().Str("component", "actions").Str("user_id", userID).Logger(),
		tickets: make(map[string]models.Ticket),
	}
}

// OnResult registers fn to be called after every action
func (c *Coordinator) OnResult(fn func(Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Coordinator) finish(res Result) {
	outcome := metrics.ActionOK
	switch {
	case errors.Is(res.Err, ErrNotPermitted):
		outcome = metrics.ActionDenied
	case res.Err != nil:
		outcome = metrics.ActionFailed
	case res.AlreadyDone:
		outcome = metrics.ActionAlreadyDone
	}
	c.metrics.ObserveAction(res.Action, outcome)

	if res.Err != nil {
		res.Error = res.Err.Error()
		c.logger.Debug().Err(res.Err).Str("action", res.Action).Msg("Action failed")
	}

	c.mu.Lock()
	observers := append([]func(Result){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(res)
	}
}

func rejected(err error) error {
	return fmt.Errorf("%w: %w", ErrRejected, err)
}

// group returns the group metadata used for permission checks, preferring
// the observed conversation's copy
func (c *Coordinator) group(ctx context.Context, groupID string) (*models.Group, *reconcile.Conversation, error) {
	conv := c.convs.Conversation(groupID)
	if conv != nil {
		if g := conv.Group(); g != nil {
			return g, conv, nil
		}
	}
	g, err := c.client.GetGroupDetails(ctx, groupID)
	if err != nil {
		return nil, conv, fmt.Errorf("%w: failed to load group: %w", ErrRejected, err)
	}
	return g, conv, nil
}

// holder returns the observed conversation holding messageID, if any
func (c *Coordinator) holder(messageID string) *reconcile.Conversation {
	conv := c.convs.Current()
	if conv == nil || conv.Stopped() {
		return nil
	}
	if _, ok := conv.Store().Get(messageID); !ok {
		return nil
	}
	return conv
}
