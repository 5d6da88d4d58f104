package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-sync-engine/internal/chat"
	"chat-sync-engine/internal/metrics"
	"chat-sync-engine/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testfetcher struct {
	getGroupDetails func(ctx context.Context, groupID string) (*models.Group, error)
	getMessages     func(ctx context.Context, groupID string) ([]models.Message, error)
}

func (f *testfetcher) GetGroupDetails(ctx context.Context, groupID string) (*models.Group, error) {
	return f.getGroupDetails(ctx, groupID)
}

func (f *testfetcher) GetMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	return f.getMessages(ctx, groupID)
}

// feed serves whatever messages are currently set
type feed struct {
	mu    sync.Mutex
	group *models.Group
	msgs  []models.Message
	fail  bool
}

func (f *feed) set(msgs ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = msgs
}

func (f *feed) fetcher() *testfetcher {
	return &testfetcher{
		getGroupDetails: func(ctx context.Context, groupID string) (*models.Group, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.fail {
				return nil, errors.New("connection reset")
			}
			g := f.group.Clone()
			g.ID = groupID
			return g, nil
		},
		getMessages: func(ctx context.Context, groupID string) ([]models.Message, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return append([]models.Message(nil), f.msgs...), nil
		},
	}
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func text(id, sender string, offset int) models.Message {
	return models.Message{
		ID:        id,
		SenderID:  sender,
		Kind:      models.KindText,
		Text:      id,
		CreatedAt: t0.Add(time.Duration(offset) * time.Second),
	}
}

func image(id, sender, url string, offset int) models.Message {
	m := text(id, sender, offset)
	m.Kind = models.KindImage
	m.Text = ""
	m.ImageURL = url
	return m
}

func testOptions() Options {
	return Options{Interval: time.Hour, TickTimeout: time.Second}
}

func next(t *testing.T, ch <-chan Snapshot, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed")
			}
			if pred(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func anySnapshot(Snapshot) bool { return true }

func TestReconciler_FirstTickPublishesDisplay(t *testing.T) {
	f := &feed{group: &models.Group{CreatedBy: "u1"}}
	f.set(
		image("m1", "u1", "https://img/1", 0),
		image("m2", "u1", "https://img/2", 1),
		text("m3", "u2", 2),
	)

	r := New(f.fetcher(), "u2", testOptions())
	defer r.Stop()

	ch, cancel := r.Observe("g1").Subscribe()
	defer cancel()

	snap := next(t, ch, anySnapshot)
	if snap.Version != 1 || snap.GroupID != "g1" {
		t.Errorf("Got version %d group %q", snap.Version, snap.GroupID)
	}
	if len(snap.Items) != 2 || !snap.Items[0].Merged {
		t.Fatalf("Got items %+v, want merged image run then text", snap.Items)
	}
	if diff := cmp.Diff([]string{"https://img/1", "https://img/2"}, snap.Items[0].ImageURLs); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
	if !snap.CanSend || !snap.CanCreatePoll || snap.CanManage {
		t.Errorf("Got verdict %+v for a member of an open group", snap.Verdict)
	}
	if len(snap.Arrived) != 0 {
		t.Errorf("initial load reported %d arrivals", len(snap.Arrived))
	}
}

func TestReconciler_RefreshReportsArrivals(t *testing.T) {
	f := &feed{group: &models.Group{}}
	f.set(text("m1", "u1", 0))

	r := New(f.fetcher(), "me", testOptions())
	defer r.Stop()
	c := r.Observe("g1")
	ch, cancel := c.Subscribe()
	defer cancel()
	next(t, ch, anySnapshot)

	f.set(text("m1", "u1", 0), text("m2", "u1", 1))
	c.Refresh()

	snap := next(t, ch, func(s Snapshot) bool { return len(s.Items) == 2 })
	if len(snap.Arrived) != 1 || snap.Arrived[0].ID != "m2" {
		t.Errorf("Got arrivals %+v, want m2", snap.Arrived)
	}
}

func TestReconciler_FailedTickIsSkipped(t *testing.T) {
	var calls atomic.Int32
	f := &feed{group: &models.Group{}}
	inner := f.fetcher()
	fetcher := &testfetcher{
		getGroupDetails: func(ctx context.Context, groupID string) (*models.Group, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("timeout")
			}
			return inner.GetGroupDetails(ctx, groupID)
		},
		getMessages: inner.getMessages,
	}

	m := metrics.New(prometheus.NewRegistry())
	opts := testOptions()
	opts.Metrics = m
	r := New(fetcher, "me", opts)
	defer r.Stop()

	c := r.Observe("g1")
	ch, cancel := c.Subscribe()
	defer cancel()
	c.Refresh()

	snap := next(t, ch, anySnapshot)
	if snap.Version != 1 {
		t.Errorf("Got version %d, a failed tick must not publish", snap.Version)
	}
	if calls.Load() < 2 {
		t.Errorf("Got %d fetches, want retry after failure", calls.Load())
	}
	if got := testutil.ToFloat64(m.TicksCounter(metrics.TickFailed)); got != 1 {
		t.Errorf("Got %v failed ticks, want 1", got)
	}
}

func TestReconciler_ObserveStopsPreviousLoop(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	f := &feed{group: &models.Group{}}
	inner := f.fetcher()
	fetcher := &testfetcher{
		getGroupDetails: func(ctx context.Context, groupID string) (*models.Group, error) {
			mu.Lock()
			seen[groupID]++
			mu.Unlock()
			return inner.GetGroupDetails(ctx, groupID)
		},
		getMessages: inner.getMessages,
	}

	r := New(fetcher, "me", testOptions())
	defer r.Stop()

	first := r.Observe("g1")
	ch, _ := first.Subscribe()
	next(t, ch, anySnapshot)

	second := r.Observe("g2")
	if !first.Stopped() {
		t.Fatal("previous conversation still running")
	}
	if _, ok := <-ch; ok {
		t.Error("subscription to stopped conversation still open")
	}

	mu.Lock()
	before := seen["g1"]
	mu.Unlock()
	first.Refresh()
	ch2, cancel := second.Subscribe()
	defer cancel()
	next(t, ch2, anySnapshot)

	mu.Lock()
	defer mu.Unlock()
	if seen["g1"] != before {
		t.Errorf("stopped loop fetched g1 again")
	}
	if r.Conversation("g1") != nil || r.Conversation("g2") != second {
		t.Errorf("Conversation() lookup wrong after switch")
	}
	if r.Observe("g2") != second {
		t.Errorf("re-observing the same group restarted its loop")
	}
}

func TestConversation_StopDiscardsInFlightResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := &testfetcher{
		getGroupDetails: func(ctx context.Context, groupID string) (*models.Group, error) {
			close(entered)
			<-release
			return &models.Group{ID: groupID}, nil
		},
		getMessages: func(ctx context.Context, groupID string) ([]models.Message, error) {
			return []models.Message{text("m1", "u1", 0)}, nil
		},
	}

	r := New(fetcher, "me", testOptions())
	c := r.Observe("g1")
	<-entered

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	for !c.Stopped() {
		time.Sleep(time.Millisecond)
	}
	close(release)
	<-stopped

	if v := c.Snapshot().Version; v != 0 {
		t.Errorf("Got version %d, late result must be discarded", v)
	}
	if n := c.Store().Len(); n != 0 {
		t.Errorf("Got %d stored messages, late result must be discarded", n)
	}
}

func TestConversation_SetGroupRecomputesVerdict(t *testing.T) {
	f := &feed{group: &models.Group{CreatedBy: "owner"}}
	r := New(f.fetcher(), "owner", testOptions())
	defer r.Stop()

	c := r.Observe("g1")
	ch, cancel := c.Subscribe()
	defer cancel()
	snap := next(t, ch, anySnapshot)
	if !snap.CanSend || !snap.CanManage {
		t.Fatalf("Got verdict %+v for the owner of an open group", snap.Verdict)
	}

	g := c.Group()
	g.IsClosed = true
	c.SetGroup(g)

	snap = next(t, ch, func(s Snapshot) bool { return s.Group != nil && s.Group.IsClosed })
	if snap.CanSend || snap.Reason != chat.ReasonClosed {
		t.Errorf("Got verdict %+v after close", snap.Verdict)
	}
	if !c.Verdict().CanManage {
		t.Errorf("owner lost manage rights on a closed group")
	}
}

func TestConversation_RefreshCoalesces(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	f := &feed{group: &models.Group{}}
	inner := f.fetcher()
	fetcher := &testfetcher{
		getGroupDetails: func(ctx context.Context, groupID string) (*models.Group, error) {
			if calls.Add(1) == 1 {
				<-gate
			}
			return inner.GetGroupDetails(ctx, groupID)
		},
		getMessages: inner.getMessages,
	}

	r := New(fetcher, "me", testOptions())
	defer r.Stop()

	c := r.Observe("g1")
	for i := 0; i < 5; i++ {
		c.Refresh()
	}
	close(gate)

	ch, cancel := c.Subscribe()
	defer cancel()
	next(t, ch, func(s Snapshot) bool { return s.Version == 2 })

	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("Got %d ticks, queued refreshes must coalesce into one", got)
	}
}
