package chat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"chat-sync-engine/internal/models"
)

// Store holds the ordered message log of one conversation.
// Messages are ordered by CreatedAt, ties broken by the order in which the
// store first saw them. Sends not yet confirmed by the server are kept apart
// and survive Replace until confirmed or expired.
type Store struct {
	mu sync.RWMutex

	confirmed []models.Message
	pending   []models.Message
	seq       map[string]uint64
	nextSeq   uint64
	loaded    bool

	pendingTTL time.Duration
	now        func() time.Time
}

// NewStore creates an empty store. A zero pendingTTL keeps pending sends
// until they are confirmed or dropped.
func NewStore(pendingTTL time.Duration) *Store {
	return &Store{
		seq:        make(map[string]uint64),
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

func pendingKey(localID string) string {
	return "local:" + localID
}

func (s *Store) key(m *models.Message) string {
	if m.Pending || m.ID == "" {
		return pendingKey(m.LocalID)
	}
	return m.ID
}

func (s *Store) arrival(key string) (uint64, bool) {
	if n, ok := s.seq[key]; ok {
		return n, false
	}
	s.nextSeq++
	s.seq[key] = s.nextSeq
	return s.nextSeq, true
}

// Replace installs fetched as the authoritative message set and returns the
// messages that were not known before. The first Replace is the initial load
// and reports no arrivals.
func (s *Store) Replace(fetched []models.Message) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := make([]bool, len(fetched))
	confirmedLocal := make(map[int]string)
	keep := s.pending[:0]
	cutoff := time.Time{}
	if s.pendingTTL > 0 {
		cutoff = s.now().Add(-s.pendingTTL)
	}
	for _, p := range s.pending {
		if i := matchPending(p, fetched, used); i >= 0 {
			used[i] = true
			confirmedLocal[i] = p.LocalID
			continue
		}
		if !cutoff.IsZero() && p.CreatedAt.Before(cutoff) {
			continue
		}
		keep = append(keep, p)
	}
	s.pending = keep

	var arrived []models.Message
	next := make([]models.Message, 0, len(fetched))
	for i, m := range fetched {
		m = cloneMessage(m)
		m.Pending = false
		if local, ok := confirmedLocal[i]; ok {
			if n, had := s.seq[pendingKey(local)]; had {
				if _, known := s.seq[m.ID]; !known {
					s.seq[m.ID] = n
				}
			}
			delete(s.seq, pendingKey(local))
			if m.LocalID == "" {
				m.LocalID = local
			}
		}
		if _, isNew := s.arrival(m.ID); isNew && s.loaded {
			if _, own := confirmedLocal[i]; !own {
				arrived = append(arrived, cloneMessage(m))
			}
		}
		next = append(next, m)
	}

	s.sortMessages(next)
	s.sortMessages(arrived)
	s.confirmed = next
	s.loaded = true
	return arrived
}

// matchPending finds the fetched message confirming p: an echoed local id,
// or otherwise the first unused message with the same sender and content.
func matchPending(p models.Message, fetched []models.Message, used []bool) int {
	for i, m := range fetched {
		if !used[i] && m.LocalID != "" && m.LocalID == p.LocalID {
			return i
		}
	}
	fp := fingerprint(p)
	for i, m := range fetched {
		if used[i] || m.LocalID != "" {
			continue
		}
		if m.CreatedAt.Before(p.CreatedAt.Add(-time.Minute)) {
			continue
		}
		if fingerprint(m) == fp {
			return i
		}
	}
	return -1
}

func fingerprint(m models.Message) string {
	var b strings.Builder
	b.WriteString(m.SenderID)
	b.WriteByte(0)
	b.WriteString(string(m.Kind))
	b.WriteByte(0)
	switch m.Kind {
	case models.KindText:
		b.WriteString(m.Text)
	case models.KindImage:
		b.WriteString(m.ImageURL)
	case models.KindPoll:
		if m.Poll != nil {
			b.WriteString(m.Poll.Question)
		}
	case models.KindPlan:
		if m.Plan != nil {
			b.WriteString(m.Plan.ID)
		}
	}
	return b.String()
}

// AddPending records an optimistic send. The message must carry a LocalID.
func (s *Store) AddPending(m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m = cloneMessage(m)
	m.Pending = true
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.arrival(pendingKey(m.LocalID))
	s.pending = append(s.pending, m)
}

// Confirm replaces the pending send localID with the server's message
func (s *Store) Confirm(localID string, m models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, had := s.seq[pendingKey(localID)]
	s.removePending(localID)
	m = cloneMessage(m)
	m.Pending = false
	m.LocalID = localID

	for i := range s.confirmed {
		if s.confirmed[i].ID == m.ID {
			s.confirmed[i] = m
			return
		}
	}
	if had {
		if _, known := s.seq[m.ID]; !known {
			s.seq[m.ID] = n
		}
	} else {
		s.arrival(m.ID)
	}
	s.confirmed = append(s.confirmed, m)
	s.sortMessages(s.confirmed)
}

// DropPending discards a pending send that the server rejected
func (s *Store) DropPending(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removePending(localID)
}

func (s *Store) removePending(localID string) {
	for i, p := range s.pending {
		if p.LocalID == localID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			delete(s.seq, pendingKey(localID))
			return
		}
	}
}

// AddReaction attaches r to its message. Duplicate reactions are kept.
func (s *Store) AddReaction(r models.Reaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.confirmed {
		if s.confirmed[i].ID == r.MessageID {
			s.confirmed[i].Reactions = append(s.confirmed[i].Reactions, r)
			return true
		}
	}
	return false
}

// UpdatePoll sets the poll carried by messageID
func (s *Store) UpdatePoll(messageID string, poll *models.Poll) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.confirmed {
		if s.confirmed[i].ID == messageID && s.confirmed[i].Kind == models.KindPoll {
			s.confirmed[i].Poll = poll.Clone()
			return true
		}
	}
	return false
}

// Get returns a copy of the confirmed message id
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.confirmed {
		if m.ID == id {
			return cloneMessage(m), true
		}
	}
	return models.Message{}, false
}

// Messages returns a copy of the log, pending sends included, in order
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(s.confirmed)+len(s.pending))
	for _, m := range s.confirmed {
		out = append(out, cloneMessage(m))
	}
	for _, m := range s.pending {
		out = append(out, cloneMessage(m))
	}
	s.sortMessages(out)
	return out
}

// Pending returns the number of unconfirmed sends
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Len returns the number of messages, pending sends included
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.confirmed) + len(s.pending)
}

func (s *Store) sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := &msgs[i], &msgs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return s.seq[s.key(a)] < s.seq[s.key(b)]
	})
}

func cloneMessage(m models.Message) models.Message {
	m.Reactions = append([]models.Reaction(nil), m.Reactions...)
	m.Poll = m.Poll.Clone()
	return m
}
