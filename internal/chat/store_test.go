package chat

import (
	"testing"
	"time"

	"chat-sync-engine/internal/models"

	"github.com/google/go-cmp/cmp"
)

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		if m.Pending {
			out[i] = "local:" + m.LocalID
			continue
		}
		out[i] = m.ID
	}
	return out
}

func TestStore_ReplaceOrdersByTimeThenArrival(t *testing.T) {
	s := NewStore(0)
	s.Replace([]models.Message{
		txt("b", "u", "second", 5),
		txt("a", "u", "first", 0),
	})
	// "c" shares its timestamp with "b" but arrives later.
	s.Replace([]models.Message{
		txt("c", "u", "tie", 5),
		txt("b", "u", "second", 5),
		txt("a", "u", "first", 0),
	})

	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, ids(s.Messages())); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ReplaceReportsArrivals(t *testing.T) {
	s := NewStore(0)
	if arrived := s.Replace([]models.Message{txt("1", "u", "x", 0)}); len(arrived) != 0 {
		t.Errorf("initial load reported %d arrivals, want 0", len(arrived))
	}

	arrived := s.Replace([]models.Message{
		txt("1", "u", "x", 0),
		txt("2", "v", "y", 1),
	})
	if diff := cmp.Diff([]string{"2"}, ids(arrived)); diff != "" {
		t.Errorf("arrivals mismatch (-want +got):\n%s", diff)
	}

	if arrived := s.Replace([]models.Message{txt("1", "u", "x", 0), txt("2", "v", "y", 1)}); len(arrived) != 0 {
		t.Errorf("steady state reported %d arrivals", len(arrived))
	}
}

func TestStore_PendingSurvivesReplaceUntilConfirmed(t *testing.T) {
	s := NewStore(time.Minute)
	s.now = func() time.Time { return t0.Add(10 * time.Second) }
	s.Replace([]models.Message{txt("1", "u", "x", 0)})

	p := txt("", "me", "hello", 10)
	p.LocalID = "L1"
	s.AddPending(p)

	// A tick that does not yet contain the send keeps it.
	s.Replace([]models.Message{txt("1", "u", "x", 0)})
	if diff := cmp.Diff([]string{"1", "local:L1"}, ids(s.Messages())); diff != "" {
		t.Fatalf("pending lost (-want +got):\n%s", diff)
	}

	// The server copy confirms it by content.
	arrived := s.Replace([]models.Message{
		txt("1", "u", "x", 0),
		txt("42", "me", "hello", 11),
	})
	if len(arrived) != 0 {
		t.Errorf("own confirmed send reported as arrival: %v", ids(arrived))
	}
	if s.Pending() != 0 {
		t.Errorf("Got %d pending, want 0", s.Pending())
	}
	got, ok := s.Get("42")
	if !ok || got.LocalID != "L1" {
		t.Errorf("confirmed message = %+v, want local id L1", got)
	}
}

func TestStore_PendingConfirmedByEchoedLocalID(t *testing.T) {
	s := NewStore(0)
	s.Replace(nil)

	p := txt("", "me", "same", 1)
	p.LocalID = "L2"
	s.AddPending(p)

	echoed := txt("9", "me", "same", 2)
	echoed.LocalID = "L2"
	s.Replace([]models.Message{echoed})

	if s.Pending() != 0 || s.Len() != 1 {
		t.Errorf("Got pending=%d len=%d, want 0 and 1", s.Pending(), s.Len())
	}
}

func TestStore_PendingExpires(t *testing.T) {
	s := NewStore(30 * time.Second)
	now := t0
	s.now = func() time.Time { return now }
	s.Replace(nil)

	p := txt("", "me", "lost", 0)
	p.LocalID = "L3"
	s.AddPending(p)

	now = t0.Add(31 * time.Second)
	s.Replace(nil)
	if s.Pending() != 0 {
		t.Errorf("expired pending send kept")
	}
}

func TestStore_ConfirmAndDrop(t *testing.T) {
	s := NewStore(0)
	s.Replace([]models.Message{txt("1", "u", "x", 0)})

	a := txt("", "me", "a", 5)
	a.LocalID = "A"
	b := txt("", "me", "b", 6)
	b.LocalID = "B"
	s.AddPending(a)
	s.AddPending(b)

	s.Confirm("A", txt("2", "me", "a", 5))
	s.DropPending("B")

	if diff := cmp.Diff([]string{"1", "2"}, ids(s.Messages())); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ReactionsAndPolls(t *testing.T) {
	s := NewStore(0)
	poll := models.Message{
		ID:        "p",
		SenderID:  "u",
		Kind:      models.KindPoll,
		CreatedAt: t0,
		Poll: &models.Poll{ID: "poll1", Question: "?", Options: []models.PollOption{
			{ID: "o1", Text: "A"}, {ID: "o2", Text: "B"},
		}},
	}
	s.Replace([]models.Message{poll, txt("t", "u", "x", 1)})

	r := models.Reaction{ID: "r1", MessageID: "t", UserID: "me", Emoji: "like"}
	if !s.AddReaction(r) || !s.AddReaction(r) {
		t.Fatal("AddReaction() = false")
	}
	got, _ := s.Get("t")
	if len(got.Reactions) != 2 {
		t.Errorf("Got %d reactions, want duplicates kept (2)", len(got.Reactions))
	}

	updated := poll.Poll.WithVote("me", "o2")
	if !s.UpdatePoll("p", updated) {
		t.Fatal("UpdatePoll() = false")
	}
	if s.UpdatePoll("t", updated) {
		t.Error("UpdatePoll() accepted a text message")
	}
	gotPoll, _ := s.Get("p")
	if gotPoll.Poll.UserVote != "o2" {
		t.Errorf("Got user vote %q, want o2", gotPoll.Poll.UserVote)
	}

	// The next fetch is authoritative for reactions.
	s.Replace([]models.Message{poll, txt("t", "u", "x", 1)})
	got, _ = s.Get("t")
	if len(got.Reactions) != 0 {
		t.Errorf("Got %d reactions after replace, want 0", len(got.Reactions))
	}
}

func TestStore_MessagesAreCopies(t *testing.T) {
	s := NewStore(0)
	s.Replace([]models.Message{{ID: "1", SenderID: "u", Kind: models.KindText, Reactions: []models.Reaction{{ID: "r"}}}})

	msgs := s.Messages()
	msgs[0].Reactions[0].ID = "mutated"

	got, _ := s.Get("1")
	if got.Reactions[0].ID != "r" {
		t.Errorf("store state mutated through returned copy")
	}
}
