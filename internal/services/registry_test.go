package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chat-sync-engine/internal/actions"
	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/metrics"
	"chat-sync-engine/internal/models"
	"chat-sync-engine/internal/profile"
	"chat-sync-engine/internal/reconcile"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// testclient implements the read calls sessions make. The embedded
// interface is nil, so any other call panics.
type testclient struct {
	actions.Client
	getInteractions func(ctx context.Context) ([]models.InteractionNotification, error)
}

func (c *testclient) GetGroupDetails(_ context.Context, groupID string) (*models.Group, error) {
	return &models.Group{ID: groupID, CreatedBy: "owner", Members: []string{"owner", "me"}}, nil
}

func (c *testclient) GetMessages(_ context.Context, groupID string) ([]models.Message, error) {
	return []models.Message{{ID: groupID + "-m1", GroupID: groupID, SenderID: "owner", Kind: models.KindText, Text: "hi"}}, nil
}

func (c *testclient) GetInteractions(ctx context.Context) ([]models.InteractionNotification, error) {
	if c.getInteractions == nil {
		return nil, nil
	}
	return c.getInteractions(ctx)
}

type testprofiles struct{}

func (testprofiles) GetUserProfile(_ context.Context, userID string) (*models.Profile, error) {
	return &models.Profile{UserID: userID, Name: "name-" + userID}, nil
}

type testconn struct {
	frames chan WSMessage
	closed atomic.Bool
}

func newTestConn() *testconn {
	return &testconn{frames: make(chan WSMessage, 16)}
}

func (c *testconn) WriteJSON(v any) error {
	c.frames <- v.(WSMessage)
	return nil
}

func (c *testconn) SetWriteDeadline(time.Time) error { return nil }

func (c *testconn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *testconn) next(t *testing.T) WSMessage {
	t.Helper()
	select {
	case m := <-c.frames:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return WSMessage{}
	}
}

func newTestRegistry(t *testing.T, client *testclient) (*Registry, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	r := NewRegistry(
		func(string) actions.Client { return client },
		profile.NewCache(testprofiles{}),
		NewWSHub(),
		Options{
			Codec:   chat.NewCodec(true),
			Metrics: m,
			Sync:    reconcile.Options{Interval: time.Hour},
		},
	)
	t.Cleanup(r.Close)
	return r, m
}

func TestRegistry_StreamAndSwitch(t *testing.T) {
	r, _ := newTestRegistry(t, &testclient{})
	ctx := context.Background()

	first := newTestConn()
	s, p1 := r.Connect("me", first)
	done := make(chan error, 1)
	go func() { done <- s.Stream(ctx, p1, "g1") }()

	frame := first.next(t)
	if frame.Type != MsgSnapshot || frame.GroupID != "g1" {
		t.Fatalf("Got frame %+v, want a g1 snapshot", frame)
	}
	snap := frame.Data.(reconcile.Snapshot)
	if !snap.CanSend || len(snap.Items) != 1 {
		t.Errorf("Got snapshot %+v", snap)
	}

	second := newTestConn()
	_, p2 := r.Connect("me", second)
	go s.Stream(ctx, p2, "g2")

	if frame := first.next(t); frame.Type != MsgClosed {
		t.Errorf("Got frame %+v on the old stream, want %s", frame, MsgClosed)
	}
	if err := <-done; err != nil {
		t.Errorf("Stream returned %v", err)
	}
	if frame := second.next(t); frame.GroupID != "g2" {
		t.Errorf("Got frame %+v, want a g2 snapshot", frame)
	}
}

func TestRegistry_DisconnectReleasesSession(t *testing.T) {
	r, m := newTestRegistry(t, &testclient{})

	a, b := newTestConn(), newTestConn()
	s1, pa := r.Connect("me", a)
	s2, pb := r.Connect("me", b)
	if s1 != s2 {
		t.Fatal("streams of one user must share a session")
	}
	s1.Reconciler.Observe("g1")

	r.Disconnect("me", pa)
	if r.Len() != 1 || !a.closed.Load() {
		t.Fatalf("Got %d sessions after first disconnect", r.Len())
	}
	r.Disconnect("me", pb)
	if r.Len() != 0 {
		t.Errorf("Got %d sessions, want 0", r.Len())
	}
	if s1.Reconciler.Current() != nil {
		t.Error("loop still running after the last stream left")
	}
	if got := testutil.ToFloat64(m.SessionsGauge()); got != 0 {
		t.Errorf("Got sessions gauge %v, want 0", got)
	}
}

func TestRegistry_ResultsFanOut(t *testing.T) {
	r, _ := newTestRegistry(t, &testclient{})

	a, b := newTestConn(), newTestConn()
	s, _ := r.Connect("me", a)
	r.Connect("me", b)

	if err := s.Actions.MarkReviewed("plan-1"); err != nil {
		t.Fatalf("MarkReviewed: %v", err)
	}
	for _, c := range []*testconn{a, b} {
		frame := c.next(t)
		res, ok := frame.Data.(actions.Result)
		if frame.Type != MsgResult || !ok || res.PlanID != "plan-1" {
			t.Errorf("Got frame %+v", frame)
		}
	}
}

func TestSession_Interactions(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	client := &testclient{
		getInteractions: func(context.Context) ([]models.InteractionNotification, error) {
			return []models.InteractionNotification{
				{ID: "n1", Type: models.InteractionComment, SourceUserID: "A", TargetPostID: "p1", CreatedAt: at},
				{ID: "n2", Type: models.InteractionReaction, SourceUserID: "B", TargetPostID: "p1", CreatedAt: at.Add(time.Minute)},
			}, nil
		},
	}
	r, _ := newTestRegistry(t, client)
	s := r.Get("me")
	ctx := context.Background()

	view, err := s.Interactions(ctx)
	if err != nil {
		t.Fatalf("Interactions: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Badge != 2 {
		t.Fatalf("Got items %+v", view.Items)
	}
	want := map[string]models.Profile{
		"A": {UserID: "A", Name: "name-A"},
		"B": {UserID: "B", Name: "name-B"},
	}
	if diff := cmp.Diff(want, view.Profiles); diff != "" {
		t.Errorf("profiles mismatch (-want +got):\n%s", diff)
	}

	seen, err := s.MarkSeen(ctx, "p1")
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if seen.Badge != 0 {
		t.Errorf("Got badge %d after seen, want 0", seen.Badge)
	}
}
