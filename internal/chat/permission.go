package chat

import "chat-sync-engine/internal/models"

// Denial reasons reported by Evaluate
const (
	ReasonNoGroup      = "group_unknown"
	ReasonClosed       = "group_closed"
	ReasonAnnouncement = "announcement_only"
)

// CanSend reports whether userID may post in g right now.
// A closed group denies everyone, owner included. An announcement group
// admits only its creator.
func CanSend(g *models.Group, userID string) bool {
	if g == nil || userID == "" {
		return false
	}
	if g.IsClosed {
		return false
	}
	if g.IsAnnouncementGroup {
		return userID == g.CreatedBy
	}
	return true
}

// CanCreatePoll follows the same rules as CanSend
func CanCreatePoll(g *models.Group, userID string) bool {
	return CanSend(g, userID)
}

// CanManage reports whether userID may close, reopen or edit g
func CanManage(g *models.Group, userID string) bool {
	return g != nil && userID != "" && g.CreatedBy == userID
}

// Verdict is the gate's answer for one user and one group state
type Verdict struct {
	CanSend       bool   `json:"can_send"`
	CanCreatePoll bool   `json:"can_create_poll"`
	CanManage     bool   `json:"can_manage"`
	Reason        string `json:"reason,omitempty"`
}

// Evaluate computes the full verdict for userID in g
func Evaluate(g *models.Group, userID string) Verdict {
	v := Verdict{
		CanSend:       CanSend(g, userID),
		CanCreatePoll: CanCreatePoll(g, userID),
		CanManage:     CanManage(g, userID),
	}
	switch {
	case g == nil:
		v.Reason = ReasonNoGroup
	case g.IsClosed:
		v.Reason = ReasonClosed
	case !v.CanSend && g.IsAnnouncementGroup:
		v.Reason = ReasonAnnouncement
	}
	return v
}
