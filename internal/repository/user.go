package repository

import (
	"context"
	"errors"
	"fmt"

	"chat-sync-engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// GetUserProfile retrieves the public profile of a user
func (b *Backend) GetUserProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT id, name, avatar_url
		FROM users
		WHERE id = $1
	`
	var p models.Profile
	err := b.db.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.Name, &p.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if b.signer != nil && p.AvatarURL != "" {
		url, err := b.signer.Resolve(ctx, p.AvatarURL)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to sign avatar")
		}
		p.AvatarURL = url
	}
	return &p, nil
}

// UserExists reports whether userID has an account
func (b *Backend) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := b.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// GetInteractions returns recent activity on the user's posts, newest first
func (c *Client) GetInteractions(ctx context.Context) ([]models.InteractionNotification, error) {
	query := `
		SELECT id, type, source_user_id, target_post_id, text, created_at
		FROM interactions
		WHERE target_user_id = $1
		ORDER BY created_at DESC
		LIMIT 500
	`
	rows, err := c.db.Query(ctx, query, c.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interactions: %w", err)
	}
	defer rows.Close()

	var out []models.InteractionNotification
	for rows.Next() {
		var n models.InteractionNotification
		if err := rows.Scan(&n.ID, &n.Type, &n.SourceUserID, &n.TargetPostID, &n.Text, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}
	return out, nil
}
