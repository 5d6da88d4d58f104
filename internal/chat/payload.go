package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-sync-engine/internal/models"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload is returned when a payload does not match its kind
var ErrInvalidPayload = errors.New("invalid message payload")

// RawMessage is a message as the API delivers it, before the payload is
// interpreted according to its kind.
type RawMessage struct {
	ID        string
	GroupID   string
	SenderID  string
	Type      string
	Content   json.RawMessage
	CreatedAt time.Time
	Reactions []models.Reaction
	LocalID   string
}

// Draft is a message the current user wants to send
type Draft struct {
	Kind     models.MessageKind `json:"kind" validate:"required,oneof=text image poll plan"`
	Text     string             `json:"text,omitempty" validate:"required_if=Kind text,max=4000"`
	ImageURL string             `json:"image_url,omitempty" validate:"required_if=Kind image,max=2048"`
	Poll     *models.Poll       `json:"poll,omitempty" validate:"required_if=Kind poll"`
	Plan     *models.PlanRef    `json:"plan,omitempty" validate:"required_if=Kind plan"`
}

// Codec converts between raw API payloads and the tagged message union.
type Codec struct {
	validate *validator.Validate
	// LegacyPlanShapes reclassifies text/image records whose content is an
	// object carrying a title as plan messages. Older records were written
	// that way.
	LegacyPlanShapes bool
}

// NewCodec creates a new payload codec
func NewCodec(legacyPlanShapes bool) *Codec {
	return &Codec{
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		LegacyPlanShapes: legacyPlanShapes,
	}
}

type textContent struct {
	Text string `json:"text"`
}

type imageContent struct {
	URL string `json:"url"`
}

type legacyPlanContent struct {
	ID       string     `json:"id"`
	PlanID   string     `json:"plan_id"`
	Title    string     `json:"title"`
	Location string     `json:"location"`
	StartsAt *time.Time `json:"starts_at"`
	ImageURL string     `json:"image_url"`
}

// Decode interprets raw according to its kind and validates the payload
// shape. viewerID is used to derive the viewer's vote on polls.
func (c *Codec) Decode(raw RawMessage, viewerID string) (models.Message, error) {
	msg := models.Message{
		ID:        raw.ID,
		GroupID:   raw.GroupID,
		SenderID:  raw.SenderID,
		Kind:      models.MessageKind(raw.Type),
		CreatedAt: raw.CreatedAt,
		Reactions: append([]models.Reaction(nil), raw.Reactions...),
		LocalID:   raw.LocalID,
	}
	if msg.ID == "" || msg.SenderID == "" {
		return models.Message{}, fmt.Errorf("%w: message id and sender are required", ErrInvalidPayload)
	}
	if !msg.Kind.Valid() {
		return models.Message{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, raw.Type)
	}

	content := bytes.TrimSpace(raw.Content)

	if c.LegacyPlanShapes && (msg.Kind == models.KindText || msg.Kind == models.KindImage) {
		if plan, ok := legacyPlan(content); ok {
			msg.Kind = models.KindPlan
			msg.Plan = plan
			return msg, nil
		}
	}

	switch msg.Kind {
	case models.KindText:
		text, err := stringOrField(content, func(b []byte) (string, error) {
			var tc textContent
			err := json.Unmarshal(b, &tc)
			return tc.Text, err
		})
		if err != nil {
			return models.Message{}, fmt.Errorf("%w: text: %v", ErrInvalidPayload, err)
		}
		msg.Text = text
	case models.KindImage:
		url, err := stringOrField(content, func(b []byte) (string, error) {
			var ic imageContent
			err := json.Unmarshal(b, &ic)
			return ic.URL, err
		})
		if err != nil {
			return models.Message{}, fmt.Errorf("%w: image: %v", ErrInvalidPayload, err)
		}
		msg.ImageURL = strings.TrimSpace(url)
	case models.KindPoll:
		var poll models.Poll
		if err := json.Unmarshal(content, &poll); err != nil {
			return models.Message{}, fmt.Errorf("%w: poll: %v", ErrInvalidPayload, err)
		}
		if err := c.validate.Struct(&poll); err != nil {
			return models.Message{}, fmt.Errorf("%w: poll: %v", ErrInvalidPayload, err)
		}
		msg.Poll = poll.ForViewer(viewerID)
		if msg.Poll.UserVote == "" {
			msg.Poll.UserVote = poll.UserVote
		}
	case models.KindPlan:
		var plan models.PlanRef
		if err := json.Unmarshal(content, &plan); err != nil {
			return models.Message{}, fmt.Errorf("%w: plan: %v", ErrInvalidPayload, err)
		}
		if err := c.validate.Struct(&plan); err != nil {
			return models.Message{}, fmt.Errorf("%w: plan: %v", ErrInvalidPayload, err)
		}
		msg.Plan = &plan
	}

	return msg, nil
}

// ValidateDraft checks a draft before it is sent
func (c *Codec) ValidateDraft(d Draft) error {
	if err := c.validate.Struct(&d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if d.Kind == models.KindText && strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("%w: text is blank", ErrInvalidPayload)
	}
	return nil
}

// ValidateURL checks that s is an absolute URL
func (c *Codec) ValidateURL(s string) error {
	if err := c.validate.Var(s, "required,url"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Encode returns the kind tag and content written for a draft
func (c *Codec) Encode(d Draft) (string, json.RawMessage, error) {
	var (
		content []byte
		err     error
	)
	switch d.Kind {
	case models.KindText:
		content, err = json.Marshal(d.Text)
	case models.KindImage:
		content, err = json.Marshal(d.ImageURL)
	case models.KindPoll:
		content, err = json.Marshal(d.Poll)
	case models.KindPlan:
		content, err = json.Marshal(d.Plan)
	default:
		return "", nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, d.Kind)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode content: %w", err)
	}
	return string(d.Kind), content, nil
}

// Message builds the local representation of a draft
func (d Draft) Message(groupID, senderID string) models.Message {
	return models.Message{
		GroupID:  groupID,
		SenderID: senderID,
		Kind:     d.Kind,
		Text:     d.Text,
		ImageURL: d.ImageURL,
		Poll:     d.Poll.Clone(),
		Plan:     d.Plan,
	}
}

func stringOrField(content []byte, field func([]byte) (string, error)) (string, error) {
	if len(content) == 0 || bytes.Equal(content, []byte("null")) {
		return "", nil
	}
	if content[0] == '"' {
		var s string
		if err := json.Unmarshal(content, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if content[0] == '{' {
		return field(content)
	}
	return "", fmt.Errorf("unexpected content %s", truncate(content, 32))
}

func legacyPlan(content []byte) (*models.PlanRef, bool) {
	if len(content) == 0 || content[0] != '{' {
		return nil, false
	}
	var lp legacyPlanContent
	if err := json.Unmarshal(content, &lp); err != nil {
		return nil, false
	}
	if strings.TrimSpace(lp.Title) == "" {
		return nil, false
	}
	id := lp.PlanID
	if id == "" {
		id = lp.ID
	}
	return &models.PlanRef{
		ID:       id,
		Title:    lp.Title,
		Location: lp.Location,
		StartsAt: lp.StartsAt,
		ImageURL: lp.ImageURL,
	}, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
