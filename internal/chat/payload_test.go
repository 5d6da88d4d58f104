package chat

import (
	"encoding/json"
	"errors"
	"testing"

	"chat-sync-engine/internal/models"
)

func raw(kind, content string) RawMessage {
	return RawMessage{
		ID:        "m1",
		GroupID:   "g1",
		SenderID:  "u1",
		Type:      kind,
		Content:   json.RawMessage(content),
		CreatedAt: t0,
	}
}

func TestCodec_Decode(t *testing.T) {
	tests := []struct {
		name     string
		legacy   bool
		raw      RawMessage
		wantKind models.MessageKind
		wantErr  bool
		check    func(t *testing.T, m models.Message)
	}{
		{
			name:     "TextString",
			raw:      raw("text", `"hello"`),
			wantKind: models.KindText,
			check: func(t *testing.T, m models.Message) {
				if m.Text != "hello" {
					t.Errorf("Got text %q, want hello", m.Text)
				}
			},
		},
		{
			name:     "TextObject",
			raw:      raw("text", `{"text":"hi there"}`),
			wantKind: models.KindText,
			check: func(t *testing.T, m models.Message) {
				if m.Text != "hi there" {
					t.Errorf("Got text %q", m.Text)
				}
			},
		},
		{
			name:     "ImageEmptyAllowed",
			raw:      raw("image", `""`),
			wantKind: models.KindImage,
			check: func(t *testing.T, m models.Message) {
				if m.ImageURL != "" {
					t.Errorf("Got url %q, want empty", m.ImageURL)
				}
			},
		},
		{
			name:     "ImageObject",
			raw:      raw("image", `{"url":" https://cdn.example.com/a.jpg "}`),
			wantKind: models.KindImage,
			check: func(t *testing.T, m models.Message) {
				if m.ImageURL != "https://cdn.example.com/a.jpg" {
					t.Errorf("Got url %q", m.ImageURL)
				}
			},
		},
		{
			name:     "PollDerivesViewerVote",
			raw:      raw("poll", `{"poll_id":"p1","question":"Where?","options":[{"id":"o1","text":"Park","votes":1,"voters":["viewer"]},{"id":"o2","text":"Beach","votes":0}]}`),
			wantKind: models.KindPoll,
			check: func(t *testing.T, m models.Message) {
				if m.Poll.UserVote != "o1" {
					t.Errorf("Got user vote %q, want o1", m.Poll.UserVote)
				}
			},
		},
		{
			name:    "PollWithOneOptionRejected",
			raw:     raw("poll", `{"poll_id":"p1","question":"?","options":[{"id":"o1","text":"A"}]}`),
			wantErr: true,
		},
		{
			name:    "PlanMissingTitleRejected",
			raw:     raw("plan", `{"plan_id":"x"}`),
			wantErr: true,
		},
		{
			name:    "UnknownKind",
			raw:     raw("sticker", `"x"`),
			wantErr: true,
		},
		{
			name:    "NumberContentRejected",
			raw:     raw("text", `42`),
			wantErr: true,
		},
		{
			name:     "LegacyPlanShapeReclassified",
			legacy:   true,
			raw:      raw("image", `{"id":"plan9","title":"Rooftop party"}`),
			wantKind: models.KindPlan,
			check: func(t *testing.T, m models.Message) {
				if m.Plan == nil || m.Plan.ID != "plan9" || m.Plan.Title != "Rooftop party" {
					t.Errorf("Got plan %+v", m.Plan)
				}
			},
		},
		{
			name:     "LegacyShapeIgnoredWhenDisabled",
			legacy:   false,
			raw:      raw("text", `{"text":"t","title":"Rooftop party"}`),
			wantKind: models.KindText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCodec(tt.legacy)
			got, err := c.Decode(tt.raw, "viewer")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("Got error %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Got kind %q, want %q", got.Kind, tt.wantKind)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestCodec_ValidateDraft(t *testing.T) {
	c := NewCodec(true)
	poll := &models.Poll{ID: "p", Question: "?", Options: []models.PollOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}}}

	tests := []struct {
		name    string
		draft   Draft
		wantErr bool
	}{
		{name: "Text", draft: Draft{Kind: models.KindText, Text: "hi"}},
		{name: "BlankText", draft: Draft{Kind: models.KindText, Text: "   "}, wantErr: true},
		{name: "ImageWithoutURL", draft: Draft{Kind: models.KindImage}, wantErr: true},
		{name: "Poll", draft: Draft{Kind: models.KindPoll, Poll: poll}},
		{name: "PollMissing", draft: Draft{Kind: models.KindPoll}, wantErr: true},
		{name: "UnknownKind", draft: Draft{Kind: "sticker", Text: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateDraft(tt.draft)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDraft() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCodec_EncodeRoundTripsThroughDecode(t *testing.T) {
	c := NewCodec(false)
	kind, content, err := c.Encode(Draft{Kind: models.KindText, Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := c.Decode(RawMessage{ID: "1", SenderID: "u", Type: kind, Content: content}, "u")
	if err != nil {
		t.Fatal(err)
	}
	if m.Text != "hello" {
		t.Errorf("Got text %q, want hello", m.Text)
	}
}
