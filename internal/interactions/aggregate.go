// Package interactions groups activity on the current user's posts into
// per-post summaries for the notification screen.
package interactions

import (
	"sort"
	"time"

	"chat-sync-engine/internal/models"
)

// MaxAvatars is the number of distinct actors shown before "+N"
const MaxAvatars = 3

// Summary is the aggregated activity on one post
type Summary struct {
	PostID        string                           `json:"post_id"`
	Count         int                              `json:"count"`
	Actors        []string                         `json:"actors"`
	Avatars       []string                         `json:"avatars"`
	Overflow      int                              `json:"overflow"`
	TypeCounts    map[models.InteractionType]int   `json:"type_counts"`
	LatestAt      time.Time                        `json:"latest_at"`
	Notifications []models.InteractionNotification `json:"notifications"`
}

// Aggregate groups list by target post. Posts are ordered by their most
// recent activity, newest first; notifications within a post likewise.
// Count keeps every raw notification while Actors is deduplicated by source
// user, most recent actor first.
func Aggregate(list []models.InteractionNotification) []Summary {
	byPost := make(map[string]*Summary)
	var order []string

	sorted := append([]models.InteractionNotification(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	for _, n := range sorted {
		s, ok := byPost[n.TargetPostID]
		if !ok {
			s = &Summary{
				PostID:     n.TargetPostID,
				TypeCounts: make(map[models.InteractionType]int),
				LatestAt:   n.CreatedAt,
			}
			byPost[n.TargetPostID] = s
			order = append(order, n.TargetPostID)
		}
		s.Count++
		s.TypeCounts[n.Type]++
		s.Notifications = append(s.Notifications, n)
		if !contains(s.Actors, n.SourceUserID) {
			s.Actors = append(s.Actors, n.SourceUserID)
		}
	}

	out := make([]Summary, 0, len(order))
	for _, id := range order {
		s := byPost[id]
		s.Avatars = s.Actors
		if len(s.Actors) > MaxAvatars {
			s.Avatars = s.Actors[:MaxAvatars]
			s.Overflow = len(s.Actors) - MaxAvatars
		}
		out = append(out, *s)
	}
	return out
}

// Candidates returns the distinct actors of s that can be invited into a
// new group or an announcement community: the current user and actors
// already confirmed as members are excluded.
func Candidates(s Summary, currentUserID string, confirmedMembers []string) []string {
	var out []string
	for _, a := range s.Actors {
		if a == currentUserID || contains(confirmedMembers, a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
