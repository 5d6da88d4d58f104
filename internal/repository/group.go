package repository

import (
	"context"
	"errors"
	"fmt"

	"chat-sync-engine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetGroupDetails retrieves group metadata and members
func (c *Client) GetGroupDetails(ctx context.Context, groupID string) (*models.Group, error) {
	query := `
		SELECT id, name, created_by, is_closed, is_announcement_group, drive_link, COALESCE(plan_id, '')
		FROM groups
		WHERE id = $1
	`
	var g models.Group
	err := c.db.QueryRow(ctx, query, groupID).Scan(
		&g.ID, &g.Name, &g.CreatedBy, &g.IsClosed, &g.IsAnnouncementGroup, &g.DriveLink, &g.PlanID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := c.db.Query(ctx, `SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		g.Members = append(g.Members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group members: %w", err)
	}

	if g.CreatedBy != c.userID && !g.HasMember(c.userID) {
		return nil, ErrNotMember
	}
	return &g, nil
}

// CloseGroup marks a group as closed
func (c *Client) CloseGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return c.setClosed(ctx, groupID, true)
}

// ReopenGroup marks a closed group as open again
func (c *Client) ReopenGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return c.setClosed(ctx, groupID, false)
}

func (c *Client) setClosed(ctx context.Context, groupID string, closed bool) (*models.Group, error) {
	query := `UPDATE groups SET is_closed = $2 WHERE id = $1 AND created_by = $3`
	result, err := c.db.Exec(ctx, query, groupID, closed, c.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, c.ownerError(ctx, groupID)
	}
	return c.GetGroupDetails(ctx, groupID)
}

// SetGroupDriveLink sets or clears the shared drive link
func (c *Client) SetGroupDriveLink(ctx context.Context, groupID string, link *string) (*models.Group, error) {
	query := `UPDATE groups SET drive_link = $2 WHERE id = $1 AND created_by = $3`
	result, err := c.db.Exec(ctx, query, groupID, link, c.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update drive link: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, c.ownerError(ctx, groupID)
	}
	return c.GetGroupDetails(ctx, groupID)
}

// ownerError explains why an owner-only update touched no row
func (c *Client) ownerError(ctx context.Context, groupID string) error {
	var exists bool
	err := c.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check group: %w", err)
	}
	if !exists {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	return ErrForbidden
}

// CreateGroup creates a group owned by the user with the given members
func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (*models.Group, error) {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New().String()
	_, err = tx.Exec(ctx,
		`INSERT INTO groups (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`,
		id, name, c.userID, c.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	if err := insertMembers(ctx, tx, id, append([]string{c.userID}, members...)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit group: %w", err)
	}
	return c.GetGroupDetails(ctx, id)
}

// AddGroupMembers adds members to a group owned by the user. Existing
// members are ignored.
func (c *Client) AddGroupMembers(ctx context.Context, groupID string, members []string) (*models.Group, error) {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx, `SELECT created_by FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if owner != c.userID {
		return nil, ErrForbidden
	}
	if err := insertMembers(ctx, tx, groupID, members); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit members: %w", err)
	}
	return c.GetGroupDetails(ctx, groupID)
}

func insertMembers(ctx context.Context, tx pgx.Tx, groupID string, members []string) error {
	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, m)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to add group members: %w", err)
	}
	return nil
}
