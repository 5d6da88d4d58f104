package actions

import (
	"context"
	"fmt"
	"strings"

	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/models"

	"github.com/google/uuid"
)

// SendMessage posts a draft to groupID. The message is shown as pending
// until the server confirms it, and removed again if the send fails.
func (c *Coordinator) SendMessage(ctx context.Context, groupID string, draft chat.Draft) (models.Message, error) {
	res := Result{Action: ActionSend, GroupID: groupID}
	msg, err := c.sendMessage(ctx, groupID, draft)
	res.MessageID = msg.ID
	res.Err = err
	c.finish(res)
	return msg, err
}

func (c *Coordinator) sendMessage(ctx context.Context, groupID string, draft chat.Draft) (models.Message, error) {
	if err := c.codec.ValidateDraft(draft); err != nil {
		return models.Message{}, err
	}

	g, conv, err := c.group(ctx, groupID)
	if err != nil {
		return models.Message{}, err
	}
	allowed := chat.CanSend(g, c.userID)
	if draft.Kind == models.KindPoll {
		allowed = chat.CanCreatePoll(g, c.userID)
	}
	if !allowed {
		return models.Message{}, fmt.Errorf("%w: %s", ErrNotPermitted, chat.Evaluate(g, c.userID).Reason)
	}

	kind, content, err := c.codec.Encode(draft)
	if err != nil {
		return models.Message{}, err
	}

	localID := uuid.NewString()
	pending := draft.Message(groupID, c.userID)
	pending.LocalID = localID
	if conv != nil {
		conv.Store().AddPending(pending)
		conv.Republish()
	}

	sent, err := c.client.SendMessage(ctx, groupID, localID, kind, content)
	if err == nil && (sent == nil || sent.ID == "") {
		err = ErrMalformedResponse
	} else if err != nil {
		err = rejected(err)
	}
	if err != nil {
		if conv != nil {
			conv.Store().DropPending(localID)
			conv.Republish()
		}
		return models.Message{}, err
	}

	out := *sent
	out.LocalID = localID
	if conv != nil {
		conv.Store().Confirm(localID, out)
		conv.Republish()
		conv.Refresh()
	}
	return out, nil
}

// React adds an emoji reaction. Repeated reactions are not deduplicated.
func (c *Coordinator) React(ctx context.Context, messageID, emoji string) (models.Reaction, error) {
	res := Result{Action: ActionReact, MessageID: messageID}
	r, err := c.react(ctx, messageID, emoji)
	res.Err = err
	c.finish(res)
	return r, err
}

func (c *Coordinator) react(ctx context.Context, messageID, emoji string) (models.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return models.Reaction{}, fmt.Errorf("%w: emoji is required", chat.ErrInvalidPayload)
	}

	r, err := c.client.AddMessageReaction(ctx, messageID, emoji)
	if err != nil {
		return models.Reaction{}, rejected(err)
	}
	if r == nil {
		return models.Reaction{}, ErrMalformedResponse
	}
	if r.MessageID == "" {
		r.MessageID = messageID
	}

	if conv := c.holder(messageID); conv != nil {
		conv.Store().AddReaction(*r)
		conv.Republish()
	}
	return *r, nil
}

// Vote casts or moves the user's vote on a poll. Votes are never blocked
// locally; the poll returned by the server wins over the local transfer.
func (c *Coordinator) Vote(ctx context.Context, messageID, optionID string) (*models.Poll, error) {
	res := Result{Action: ActionVote, MessageID: messageID}
	p, err := c.vote(ctx, messageID, optionID)
	res.Err = err
	c.finish(res)
	return p, err
}

func (c *Coordinator) vote(ctx context.Context, messageID, optionID string) (*models.Poll, error) {
	if optionID == "" {
		return nil, fmt.Errorf("%w: option is required", chat.ErrInvalidPayload)
	}

	returned, err := c.client.VotePoll(ctx, messageID, optionID)
	if err != nil {
		return nil, rejected(err)
	}

	conv := c.holder(messageID)
	var poll *models.Poll
	switch {
	case returned != nil:
		poll = returned.ForViewer(c.userID)
		if poll.UserVote == "" {
			poll.UserVote = returned.UserVote
		}
		if poll.UserVote == "" {
			poll.UserVote = optionID
		}
	case conv != nil:
		m, _ := conv.Store().Get(messageID)
		if m.Poll == nil {
			return nil, nil
		}
		poll = m.Poll.WithVote(c.userID, optionID)
	default:
		return nil, nil
	}

	if conv != nil {
		conv.Store().UpdatePoll(messageID, poll)
		conv.Republish()
	}
	return poll, nil
}
