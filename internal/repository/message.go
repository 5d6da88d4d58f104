package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

type messageRow struct {
	ID        string
	GroupID   string
	UserID    string
	Type      string
	Content   []byte
	LocalID   string
	CreatedAt time.Time
}

type voteRow struct {
	MessageID string
	UserID    string
	OptionID  string
}

// GetMessages retrieves the full message log of a group, oldest first.
// Rows whose payload does not match their type are skipped.
func (c *Client) GetMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	if err := c.requireMember(ctx, groupID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, group_id, user_id, type, content, COALESCE(local_id, ''), created_at
		FROM messages
		WHERE group_id = $1
		ORDER BY created_at, id
	`
	rows, err := c.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var msgs []messageRow
	for rows.Next() {
		var m messageRow
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Type, &m.Content, &m.LocalID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	reactions, err := c.groupReactions(ctx, groupID)
	if err != nil {
		return nil, err
	}
	votes, err := c.votes(ctx, `
		SELECT v.message_id, v.user_id, v.option_id
		FROM poll_votes v JOIN messages m ON m.id = v.message_id
		WHERE m.group_id = $1
		ORDER BY v.voted_at
	`, groupID)
	if err != nil {
		return nil, err
	}

	out := assemble(c.codec, msgs, reactions, votes, c.userID)
	if c.signer != nil {
		c.signer.SignMessages(ctx, out)
	}
	return out, nil
}

func (c *Client) groupReactions(ctx context.Context, groupID string) (map[string][]models.Reaction, error) {
	query := `
		SELECT r.id, r.message_id, r.user_id, r.emoji_type
		FROM message_reactions r JOIN messages m ON m.id = r.message_id
		WHERE m.group_id = $1
		ORDER BY r.created_at, r.id
	`
	rows, err := c.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Reaction)
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Emoji); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reactions: %w", err)
	}
	return out, nil
}

func (c *Client) votes(ctx context.Context, query string, arg string) ([]voteRow, error) {
	rows, err := c.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll votes: %w", err)
	}
	defer rows.Close()

	var out []voteRow
	for rows.Next() {
		var v voteRow
		if err := rows.Scan(&v.MessageID, &v.UserID, &v.OptionID); err != nil {
			return nil, fmt.Errorf("failed to scan poll vote: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating poll votes: %w", err)
	}
	return out, nil
}

// assemble decodes message rows into the tagged union, attaching reactions
// and tallying poll votes for viewerID
func assemble(codec *chat.Codec, rows []messageRow, reactions map[string][]models.Reaction, votes []voteRow, viewerID string) []models.Message {
	byMessage := make(map[string][]voteRow)
	for _, v := range votes {
		byMessage[v.MessageID] = append(byMessage[v.MessageID], v)
	}

	out := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		msg, err := codec.Decode(chat.RawMessage{
			ID:        r.ID,
			GroupID:   r.GroupID,
			SenderID:  r.UserID,
			Type:      r.Type,
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
			Reactions: reactions[r.ID],
			LocalID:   r.LocalID,
		}, viewerID)
		if err != nil {
			log.Warn().Err(err).Str("message_id", r.ID).Msg("Skipping malformed message")
			continue
		}
		if msg.Poll != nil {
			msg.Poll = tally(msg.Poll, byMessage[r.ID], viewerID)
		}
		out = append(out, msg)
	}
	return out
}

// tally replaces the poll's counts with the recorded votes. Votes for
// options the poll does not offer are ignored.
func tally(p *models.Poll, votes []voteRow, viewerID string) *models.Poll {
	out := p.Clone()
	index := make(map[string]int, len(out.Options))
	for i := range out.Options {
		out.Options[i].VoteCount = 0
		out.Options[i].Voters = nil
		index[out.Options[i].ID] = i
	}
	for _, v := range votes {
		i, ok := index[v.OptionID]
		if !ok {
			continue
		}
		out.Options[i].VoteCount++
		out.Options[i].Voters = append(out.Options[i].Voters, v.UserID)
	}
	return out.ForViewer(viewerID)
}

// SendMessage stores a new message. Retrying with the same localID returns
// the message stored by the first attempt.
func (c *Client) SendMessage(ctx context.Context, groupID, localID, kind string, content json.RawMessage) (*models.Message, error) {
	g, err := c.GetGroupDetails(ctx, groupID)
	if err != nil {
		return nil, err
	}
	allowed := chat.CanSend(g, c.userID)
	if models.MessageKind(kind) == models.KindPoll {
		allowed = chat.CanCreatePoll(g, c.userID)
	}
	if !allowed {
		return nil, ErrForbidden
	}

	var local *string
	if localID != "" {
		local = &localID
	}
	row := messageRow{GroupID: groupID, UserID: c.userID, Type: kind, Content: content, LocalID: localID}
	query := `
		INSERT INTO messages (id, group_id, user_id, type, content, local_id, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)
		ON CONFLICT (user_id, local_id) WHERE local_id IS NOT NULL DO NOTHING
		RETURNING id, created_at
	`
	err = c.db.QueryRow(ctx, query,
		uuid.New().String(), groupID, c.userID, kind, string(content), local, c.now(),
	).Scan(&row.ID, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = c.db.QueryRow(ctx,
			`SELECT id, type, content, created_at FROM messages WHERE user_id = $1 AND local_id = $2`,
			c.userID, localID,
		).Scan(&row.ID, &row.Type, &row.Content, &row.CreatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	msgs := assemble(c.codec, []messageRow{row}, nil, nil, c.userID)
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: stored message %s", chat.ErrInvalidPayload, row.ID)
	}
	if c.signer != nil {
		c.signer.SignMessages(ctx, msgs)
	}
	return &msgs[0], nil
}

func (c *Client) messageGroup(ctx context.Context, messageID string) (string, error) {
	var groupID string
	err := c.db.QueryRow(ctx, `SELECT group_id FROM messages WHERE id = $1`, messageID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to get message: %w", err)
	}
	return groupID, c.requireMember(ctx, groupID)
}

// AddMessageReaction records a reaction. The same user may react with the
// same emoji more than once.
func (c *Client) AddMessageReaction(ctx context.Context, messageID, emoji string) (*models.Reaction, error) {
	if _, err := c.messageGroup(ctx, messageID); err != nil {
		return nil, err
	}

	r := &models.Reaction{
		ID:        uuid.New().String(),
		MessageID: messageID,
		UserID:    c.userID,
		Emoji:     emoji,
	}
	query := `
		INSERT INTO message_reactions (id, message_id, user_id, emoji_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := c.db.Exec(ctx, query, r.ID, r.MessageID, r.UserID, r.Emoji, c.now()); err != nil {
		return nil, fmt.Errorf("failed to add reaction: %w", err)
	}
	return r, nil
}

// VotePoll records the user's vote, replacing any earlier vote on the same
// poll, and returns the updated poll
func (c *Client) VotePoll(ctx context.Context, messageID, optionID string) (*models.Poll, error) {
	if _, err := c.messageGroup(ctx, messageID); err != nil {
		return nil, err
	}

	var row messageRow
	err := c.db.QueryRow(ctx,
		`SELECT id, group_id, user_id, type, content, created_at FROM messages WHERE id = $1`, messageID,
	).Scan(&row.ID, &row.GroupID, &row.UserID, &row.Type, &row.Content, &row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	msgs := assemble(c.codec, []messageRow{row}, nil, nil, c.userID)
	if len(msgs) == 0 || msgs[0].Poll == nil {
		return nil, fmt.Errorf("message %s is not a poll: %w", messageID, ErrNotFound)
	}
	known := false
	for _, o := range msgs[0].Poll.Options {
		known = known || o.ID == optionID
	}
	if !known {
		return nil, fmt.Errorf("option %s: %w", optionID, ErrNotFound)
	}

	query := `
		INSERT INTO poll_votes (message_id, user_id, option_id, voted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id) DO UPDATE SET option_id = EXCLUDED.option_id, voted_at = EXCLUDED.voted_at
	`
	if _, err := c.db.Exec(ctx, query, messageID, c.userID, optionID, c.now()); err != nil {
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	votes, err := c.votes(ctx, `SELECT message_id, user_id, option_id FROM poll_votes WHERE message_id = $1 ORDER BY voted_at`, messageID)
	if err != nil {
		return nil, err
	}
	return tally(msgs[0].Poll, votes, c.userID), nil
}
