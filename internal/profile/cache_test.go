package profile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-sync-engine/internal/models"

	"github.com/google/go-cmp/cmp"
)

type testloader struct {
	getUserProfile func(ctx context.Context, userID string) (*models.Profile, error)
}

func (l *testloader) GetUserProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return l.getUserProfile(ctx, userID)
}

func TestCache_GetCollapsesConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := NewCache(&testloader{
		getUserProfile: func(ctx context.Context, userID string) (*models.Profile, error) {
			calls.Add(1)
			<-release
			return &models.Profile{UserID: userID, Name: "Ana"}, nil
		},
	})

	var wg sync.WaitGroup
	results := make([]models.Profile, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Get(context.Background(), "u1")
			if err != nil {
				t.Errorf("Get() error: %v", err)
			}
			results[i] = p
		}(i)
	}
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got < 1 || got > int32(len(results)) {
		t.Fatalf("Got %d loads", got)
	}
	for _, p := range results {
		if diff := cmp.Diff(models.Profile{UserID: "u1", Name: "Ana"}, p); diff != "" {
			t.Errorf("profile mismatch (-want +got):\n%s", diff)
		}
	}

	before := calls.Load()
	if _, err := c.Get(context.Background(), "u1"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if calls.Load() != before {
		t.Errorf("cached profile was loaded again")
	}
}

func TestCache_Many(t *testing.T) {
	c := NewCache(&testloader{
		getUserProfile: func(ctx context.Context, userID string) (*models.Profile, error) {
			switch userID {
			case "gone":
				return nil, errors.New("not found")
			case "nil":
				return nil, nil
			}
			return &models.Profile{UserID: userID}, nil
		},
	})

	got := c.Many(context.Background(), []string{"a", "gone", "b", "a", "nil"})
	want := map[string]models.Profile{"a": {UserID: "a"}, "b": {UserID: "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Many() mismatch (-want +got):\n%s", diff)
	}
	if c.Len() != 2 {
		t.Errorf("Got %d cached, failures must not be cached", c.Len())
	}
}
