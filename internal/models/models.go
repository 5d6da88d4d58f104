package models

import "time"

// MessageKind is the authoritative tag of a message payload
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindPoll  MessageKind = "poll"
	KindPlan  MessageKind = "plan"
)

// Valid reports whether k is one of the known message kinds
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindPoll, KindPlan:
		return true
	}
	return false
}

// Message represents one entry of a conversation log.
// Exactly one payload field is meaningful, selected by Kind.
type Message struct {
	ID        string      `json:"message_id"`
	GroupID   string      `json:"group_id"`
	SenderID  string      `json:"user_id"`
	Kind      MessageKind `json:"type"`
	Text      string      `json:"text,omitempty"`
	ImageURL  string      `json:"image_url,omitempty"`
	Poll      *Poll       `json:"poll,omitempty"`
	Plan      *PlanRef    `json:"plan,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Reactions []Reaction  `json:"reactions"`

	// LocalID is set on sends issued by this client and echoed back by
	// servers that support it.
	LocalID string `json:"local_id,omitempty"`
	// Pending marks a send that the server has not confirmed yet.
	Pending bool `json:"pending,omitempty"`
}

// Reaction represents an emoji reaction attached to a message
type Reaction struct {
	ID        string `json:"reaction_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji_type"`
}

// PlanRef is a plan shared into a conversation
type PlanRef struct {
	ID       string     `json:"plan_id" validate:"required"`
	Title    string     `json:"title" validate:"required"`
	Location string     `json:"location,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
}

// Group holds conversation metadata used by the permission gate
type Group struct {
	ID                  string   `json:"group_id"`
	Name                string   `json:"name"`
	Members             []string `json:"members"`
	IsClosed            bool     `json:"is_closed"`
	IsAnnouncementGroup bool     `json:"is_announcement_group"`
	CreatedBy           string   `json:"created_by"`
	DriveLink           *string  `json:"drive_link,omitempty"`
	PlanID              string   `json:"plan_id,omitempty"`
}

// HasMember reports whether userID is listed as a member of the group
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the group
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := *g
	out.Members = append([]string(nil), g.Members...)
	if g.DriveLink != nil {
		link := *g.DriveLink
		out.DriveLink = &link
	}
	return &out
}

// TicketStatus is the lifecycle state of a registration
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket represents a registration for a plan
type Ticket struct {
	ID        string       `json:"ticket_id"`
	PlanID    string       `json:"plan_id"`
	UserID    string       `json:"user_id"`
	PassID    *string      `json:"pass_id,omitempty"`
	Status    TicketStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// Plan is an event the user organizes or attends
type Plan struct {
	ID        string     `json:"plan_id"`
	Title     string     `json:"title"`
	Location  string     `json:"location,omitempty"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	Ticket    *Ticket    `json:"ticket,omitempty"`
}

// Guest is one entry of a plan's guest list
type Guest struct {
	UserID   string       `json:"user_id"`
	Name     string       `json:"name"`
	TicketID string       `json:"ticket_id"`
	Status   TicketStatus `json:"status"`
}

// InteractionType is the kind of activity a notification reports
type InteractionType string

const (
	InteractionComment  InteractionType = "comment"
	InteractionReaction InteractionType = "reaction"
	InteractionJoin     InteractionType = "join"
	InteractionRepost   InteractionType = "repost"
)

// InteractionNotification represents activity on one of the actor's posts
type InteractionNotification struct {
	ID           string          `json:"notification_id"`
	Type         InteractionType `json:"type"`
	SourceUserID string          `json:"source_user_id"`
	TargetPostID string          `json:"target_post_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Text         string          `json:"text,omitempty"`
}

// Profile is the public part of a user record
type Profile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayItem is one bubble of the rendered conversation
type DisplayItem struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	Kind       MessageKind `json:"kind"`
	MessageIDs []string    `json:"message_ids"`
	ImageURLs  []string    `json:"image_urls,omitempty"`
	Merged     bool        `json:"merged"`
	CreatedAt  time.Time   `json:"created_at"`
	Message    *Message    `json:"message,omitempty"`
}
