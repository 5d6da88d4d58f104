// Package ticketflag persists the "ticket needs review" flag raised after a
// successful registration, until the user has looked at the ticket.
package ticketflag

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"
)

// Flag is the stored state for one plan
type Flag struct {
	PlanID     string     `json:"plan_id"`
	TicketID   string     `json:"ticket_id"`
	RaisedAt   time.Time  `json:"raised_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// Pending reports whether the ticket still awaits review
func (f Flag) Pending() bool {
	return f.ReviewedAt == nil
}

// Store keeps flags in a pebble database
type Store struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens (or creates) the flag database at path
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open ticket flag store: %w", err)
	}
	log.Info().Str("path", path).Msg("Ticket flag store opened")
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func key(userID, planID string) []byte {
	return []byte("ticketreview/" + userID + "/" + planID)
}

// Raise marks the ticket for planID as awaiting review. Raising an already
// raised flag keeps its original time and review state.
func (s *Store) Raise(userID, planID, ticketID string) error {
	if _, ok, err := s.Get(userID, planID); err != nil {
		return err
	} else if ok {
		return nil
	}
	return s.put(userID, Flag{PlanID: planID, TicketID: ticketID, RaisedAt: s.now().UTC()})
}

// Get returns the flag stored for planID
func (s *Store) Get(userID, planID string) (Flag, bool, error) {
	v, closer, err := s.db.Get(key(userID, planID))
	if errors.Is(err, pebble.ErrNotFound) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, fmt.Errorf("failed to read ticket flag: %w", err)
	}
	defer closer.Close()

	var f Flag
	if err := json.Unmarshal(v, &f); err != nil {
		return Flag{}, false, fmt.Errorf("failed to decode ticket flag: %w", err)
	}
	return f, true, nil
}

// ReviewPending reports whether a raised flag for planID awaits review
func (s *Store) ReviewPending(userID, planID string) (bool, error) {
	f, ok, err := s.Get(userID, planID)
	if err != nil || !ok {
		return false, err
	}
	return f.Pending(), nil
}

// MarkReviewed clears the pending state. Marking a plan without a flag
// records it as reviewed so a later Raise does not prompt again.
func (s *Store) MarkReviewed(userID, planID string) error {
	f, ok, err := s.Get(userID, planID)
	if err != nil {
		return err
	}
	if !ok {
		f = Flag{PlanID: planID, RaisedAt: s.now().UTC()}
	}
	if !f.Pending() {
		return nil
	}
	now := s.now().UTC()
	f.ReviewedAt = &now
	return s.put(userID, f)
}

func (s *Store) put(userID string, f Flag) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode ticket flag: %w", err)
	}
	if err := s.db.Set(key(userID, f.PlanID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write ticket flag: %w", err)
	}
	return nil
}
