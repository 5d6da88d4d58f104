package actions

import (
	"context"
	"fmt"
	"strings"

	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/interactions"
	"chat-sync-engine/internal/models"
	"chat-sync-engine/internal/reconcile"
)

// CloseGroup stops everyone from sending to groupID. Only the creator may
// close a group; closing a closed group succeeds without a call.
func (c *Coordinator) CloseGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return c.setClosed(ctx, ActionClose, groupID, true)
}

// ReopenGroup reverses CloseGroup
func (c *Coordinator) ReopenGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return c.setClosed(ctx, ActionReopen, groupID, false)
}

func (c *Coordinator) setClosed(ctx context.Context, action, groupID string, closed bool) (*models.Group, error) {
	res := Result{Action: action, GroupID: groupID}
	g, done, err := c.doSetClosed(ctx, groupID, closed)
	res.AlreadyDone = done
	res.Err = err
	c.finish(res)
	return g, err
}

func (c *Coordinator) doSetClosed(ctx context.Context, groupID string, closed bool) (*models.Group, bool, error) {
	g, conv, err := c.group(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if !chat.CanManage(g, c.userID) {
		return nil, false, ErrNotPermitted
	}
	if g.IsClosed == closed {
		return g, true, nil
	}

	call := c.client.ReopenGroup
	if closed {
		call = c.client.CloseGroup
	}
	updated, err := call(ctx, groupID)
	if err != nil {
		return nil, false, rejected(err)
	}
	if updated == nil {
		updated = g.Clone()
	}
	updated.IsClosed = closed

	c.apply(conv, updated)
	return updated, false, nil
}

// SetDriveLink sets or, with a nil link, clears the shared drive link of
// groupID. Only the creator may change it.
func (c *Coordinator) SetDriveLink(ctx context.Context, groupID string, link *string) (*models.Group, error) {
	res := Result{Action: ActionDriveLink, GroupID: groupID}
	g, err := c.setDriveLink(ctx, groupID, link)
	res.Err = err
	c.finish(res)
	return g, err
}

func (c *Coordinator) setDriveLink(ctx context.Context, groupID string, link *string) (*models.Group, error) {
	if link != nil {
		trimmed := strings.TrimSpace(*link)
		if err := c.codec.ValidateURL(trimmed); err != nil {
			return nil, err
		}
		link = &trimmed
	}

	g, conv, err := c.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !chat.CanManage(g, c.userID) {
		return nil, ErrNotPermitted
	}

	updated, err := c.client.SetGroupDriveLink(ctx, groupID, link)
	if err != nil {
		return nil, rejected(err)
	}
	if updated == nil {
		updated = g.Clone()
		updated.DriveLink = link
	}

	c.apply(conv, updated)
	return updated, nil
}

func (c *Coordinator) apply(conv *reconcile.Conversation, g *models.Group) {
	if conv != nil {
		conv.SetGroup(g)
	}
}

// Interactions fetches the user's post activity grouped by post
func (c *Coordinator) Interactions(ctx context.Context) ([]interactions.Summary, error) {
	list, err := c.client.GetInteractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get interactions: %w", err)
	}
	return interactions.Aggregate(list), nil
}

// Summary returns the aggregated activity of one post
func (c *Coordinator) Summary(ctx context.Context, postID string) (interactions.Summary, error) {
	summaries, err := c.Interactions(ctx)
	if err != nil {
		return interactions.Summary{}, err
	}
	for _, s := range summaries {
		if s.PostID == postID {
			return s, nil
		}
	}
	return interactions.Summary{PostID: postID}, nil
}

// CreateGroupFromInteractions starts a group with everyone who interacted
// with the post summarized by s
func (c *Coordinator) CreateGroupFromInteractions(ctx context.Context, s interactions.Summary, name string) (*models.Group, error) {
	res := Result{Action: ActionCreateGroup}
	g, err := c.createGroup(ctx, s, name)
	if g != nil {
		res.GroupID = g.ID
	}
	res.Err = err
	c.finish(res)
	return g, err
}

func (c *Coordinator) createGroup(ctx context.Context, s interactions.Summary, name string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", chat.ErrInvalidPayload)
	}
	members := interactions.Candidates(s, c.userID, nil)
	if len(members) == 0 {
		return nil, ErrNoCandidates
	}

	g, err := c.client.CreateGroup(ctx, name, members)
	if err != nil {
		return nil, rejected(err)
	}
	if g == nil || g.ID == "" {
		return nil, ErrMalformedResponse
	}
	return g, nil
}

// AddToCommunity invites the actors of s into the announcement group
// groupID. Actors already in the group are skipped; when nobody is left the
// action is already done.
func (c *Coordinator) AddToCommunity(ctx context.Context, groupID string, s interactions.Summary) (*models.Group, error) {
	res := Result{Action: ActionAddCommunity, GroupID: groupID}
	g, done, err := c.addToCommunity(ctx, groupID, s)
	res.AlreadyDone = done
	res.Err = err
	c.finish(res)
	return g, err
}

func (c *Coordinator) addToCommunity(ctx context.Context, groupID string, s interactions.Summary) (*models.Group, bool, error) {
	g, conv, err := c.group(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if g == nil || !g.IsAnnouncementGroup || !chat.CanManage(g, c.userID) {
		return nil, false, ErrNotPermitted
	}

	members := interactions.Candidates(s, c.userID, g.Members)
	if len(members) == 0 {
		return g, true, nil
	}

	updated, err := c.client.AddGroupMembers(ctx, groupID, members)
	if err != nil {
		return nil, false, rejected(err)
	}
	if updated == nil {
		updated = g.Clone()
		updated.Members = append(updated.Members, members...)
	}

	c.apply(conv, updated)
	return updated, false, nil
}
