package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-sync-engine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ticketColumns = `id, plan_id, user_id, pass_id, status, created_at`

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	if err := row.Scan(&t.ID, &t.PlanID, &t.UserID, &t.PassID, &t.Status, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// HasTicketForPlan returns the user's active ticket for planID, or nil
func (c *Client) HasTicketForPlan(ctx context.Context, planID string) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE plan_id = $1 AND user_id = $2 AND status = 'active' LIMIT 1`
	t, err := scanTicket(c.db.QueryRow(ctx, query, planID, c.userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// RegisterForEvent issues a ticket for planID. A user holds at most one
// active ticket per plan; registering again returns it.
func (c *Client) RegisterForEvent(ctx context.Context, planID string, passID *string) (*models.Ticket, error) {
	var exists bool
	if err := c.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM plans WHERE id = $1)`, planID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check plan: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}

	query := `
		INSERT INTO tickets (id, plan_id, user_id, pass_id, status, created_at)
		VALUES ($1, $2, $3, $4, 'active', $5)
		ON CONFLICT (plan_id, user_id) WHERE status = 'active' DO NOTHING
		RETURNING ` + ticketColumns
	t, err := scanTicket(c.db.QueryRow(ctx, query, uuid.New().String(), planID, c.userID, passID, c.now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return c.HasTicketForPlan(ctx, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return t, nil
}

// GetGuestList returns the holders of active tickets for planID
func (c *Client) GetGuestList(ctx context.Context, planID string) ([]models.Guest, error) {
	query := `
		SELECT t.user_id, u.name, t.id, t.status
		FROM tickets t JOIN users u ON u.id = t.user_id
		WHERE t.plan_id = $1 AND t.status = 'active'
		ORDER BY t.created_at
	`
	rows, err := c.db.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guests: %w", err)
	}
	defer rows.Close()

	var guests []models.Guest
	for rows.Next() {
		var g models.Guest
		if err := rows.Scan(&g.UserID, &g.Name, &g.TicketID, &g.Status); err != nil {
			return nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		guests = append(guests, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guests: %w", err)
	}
	return guests, nil
}

// GetUserPlans returns the plans the user created or holds a ticket for
func (c *Client) GetUserPlans(ctx context.Context) ([]models.Plan, error) {
	query := `
		SELECT p.id, p.title, p.location, p.starts_at, p.created_by,
		       t.id, t.pass_id, t.status, t.created_at
		FROM plans p
		LEFT JOIN tickets t ON t.plan_id = p.id AND t.user_id = $1 AND t.status = 'active'
		WHERE p.created_by = $1 OR t.id IS NOT NULL
		ORDER BY p.starts_at NULLS LAST, p.id
	`
	rows, err := c.db.Query(ctx, query, c.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var (
			p         models.Plan
			ticketID  *string
			passID    *string
			status    *string
			createdAt *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Location, &p.StartsAt, &p.CreatedBy,
			&ticketID, &passID, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		if ticketID != nil {
			p.Ticket = &models.Ticket{
				ID:     *ticketID,
				PlanID: p.ID,
				UserID: c.userID,
				PassID: passID,
				Status: models.TicketStatus(*status),
			}
			if createdAt != nil {
				p.Ticket.CreatedAt = *createdAt
			}
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}
