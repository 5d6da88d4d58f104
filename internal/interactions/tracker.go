package interactions

import "sync"

// Tracker holds the local view state of the interactions screen: which
// posts were opened and which comment rows are expanded. Nothing here is
// sent to the server.
type Tracker struct {
	mu       sync.RWMutex
	seen     map[string]bool
	expanded map[string]bool
}

// NewTracker creates a new tracker
func NewTracker() *Tracker {
	return &Tracker{
		seen:     make(map[string]bool),
		expanded: make(map[string]bool),
	}
}

// MarkSeen records that the user opened postID. It is never undone.
func (t *Tracker) MarkSeen(postID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[postID] = true
}

// Seen reports whether postID was opened
func (t *Tracker) Seen(postID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seen[postID]
}

// Badge returns the unread badge for s: the raw count until the post is
// opened, zero afterwards.
func (t *Tracker) Badge(s Summary) int {
	if t.Seen(s.PostID) {
		return 0
	}
	return s.Count
}

// ToggleComment flips the inline expansion of a comment row and returns
// the new state
func (t *Tracker) ToggleComment(notificationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expanded[notificationID] = !t.expanded[notificationID]
	return t.expanded[notificationID]
}

// Expanded reports whether the comment row is expanded
func (t *Tracker) Expanded(notificationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expanded[notificationID]
}

// View is a summary decorated with local view state
type View struct {
	Summary
	Badge    int             `json:"badge"`
	Expanded map[string]bool `json:"expanded,omitempty"`
}

// Views decorates summaries with badges and expansion state
func (t *Tracker) Views(summaries []Summary) []View {
	out := make([]View, len(summaries))
	for i, s := range summaries {
		v := View{Summary: s, Badge: t.Badge(s)}
		for _, n := range s.Notifications {
			if t.Expanded(n.ID) {
				if v.Expanded == nil {
					v.Expanded = make(map[string]bool)
				}
				v.Expanded[n.ID] = true
			}
		}
		out[i] = v
	}
	return out
}
