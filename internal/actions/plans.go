package actions

import (
	"context"
	"fmt"

	"chat-sync-engine/internal/models"
)

// Registration is the outcome of Register
type Registration struct {
	Ticket            models.Ticket `json:"ticket"`
	AlreadyRegistered bool          `json:"already_registered"`
}

// Register signs the user up for planID. An existing active ticket makes
// this a successful no-op; concurrent registrations for one plan share a
// single request.
func (c *Coordinator) Register(ctx context.Context, planID string, passID *string) (Registration, error) {
	res := Result{Action: ActionRegister, PlanID: planID}
	reg, err := c.register(ctx, planID, passID)
	res.AlreadyDone = reg.AlreadyRegistered
	res.Err = err
	c.finish(res)
	return reg, err
}

func (c *Coordinator) register(ctx context.Context, planID string, passID *string) (Registration, error) {
	if t, ok := c.ticket(planID); ok {
		return Registration{Ticket: t, AlreadyRegistered: true}, nil
	}

	v, err, _ := c.registrations.Do(planID, func() (interface{}, error) {
		existing, err := c.client.HasTicketForPlan(ctx, planID)
		if err != nil {
			return Registration{}, fmt.Errorf("%w: failed to check ticket: %w", ErrRejected, err)
		}
		if existing != nil && existing.Status != models.TicketCancelled {
			c.remember(*existing)
			return Registration{Ticket: *existing, AlreadyRegistered: true}, nil
		}

		t, err := c.client.RegisterForEvent(ctx, planID, passID)
		if err != nil {
			return Registration{}, rejected(err)
		}
		if t == nil || t.ID == "" {
			return Registration{}, ErrMalformedResponse
		}
		if t.PlanID == "" {
			t.PlanID = planID
		}
		c.remember(*t)
		c.raiseReview(planID, t.ID)
		return Registration{Ticket: *t}, nil
	})
	if err != nil {
		return Registration{}, err
	}
	return v.(Registration), nil
}

func (c *Coordinator) ticket(planID string) (models.Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tickets[planID]
	return t, ok
}

func (c *Coordinator) remember(t models.Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets[t.PlanID] = t
}

func (c *Coordinator) raiseReview(planID, ticketID string) {
	if c.flags == nil {
		return
	}
	if err := c.flags.Raise(c.userID, planID, ticketID); err != nil {
		c.logger.Warn().Err(err).Str("plan_id", planID).Msg("Failed to raise ticket review flag")
	}
}

// GuestList returns the guests registered for planID
func (c *Coordinator) GuestList(ctx context.Context, planID string) ([]models.Guest, error) {
	guests, err := c.client.GetGuestList(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guest list: %w", err)
	}
	return guests, nil
}

// UserPlans returns the plans the user organizes or attends. Active tickets
// found on them are remembered for Register.
func (c *Coordinator) UserPlans(ctx context.Context) ([]models.Plan, error) {
	plans, err := c.client.GetUserPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user plans: %w", err)
	}
	for _, p := range plans {
		if p.Ticket != nil && p.Ticket.Status != models.TicketCancelled {
			t := *p.Ticket
			if t.PlanID == "" {
				t.PlanID = p.ID
			}
			c.remember(t)
		}
	}
	return plans, nil
}

// ReviewPending reports whether the ticket for planID still awaits review
func (c *Coordinator) ReviewPending(planID string) (bool, error) {
	if c.flags == nil {
		return false, nil
	}
	return c.flags.ReviewPending(c.userID, planID)
}

// MarkReviewed clears the review flag of planID
func (c *Coordinator) MarkReviewed(planID string) error {
	res := Result{Action: ActionMarkReviewed, PlanID: planID}
	if c.flags != nil {
		res.Err = c.flags.MarkReviewed(c.userID, planID)
	}
	c.finish(res)
	return res.Err
}
