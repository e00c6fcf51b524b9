package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// nextEvent returns the very next event, failing if it is of another kind.
func nextEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	select {
	case ev := <-ch:
		if ev.Kind != kind {
			t.Fatalf("expected %v, got %v (%+v)", kind, ev.Kind, ev)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event kind %v not received", kind)
		return nil
	}
}

func noEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v: %+v", ev.Kind, ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(opts)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()

	c := NewClient(id, 0)
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return c
}

// join authenticates c and consumes the roster it receives.
func join(t *testing.T, c *Client, user, name, room string) []RosterEntry {
	t.Helper()

	c.Commands <- &Command{Kind: CommandAuthenticate, UserID: user, DisplayName: name, Room: room}
	return nextEvent(t, c.Events, EventRoomUsersUpdated).Roster
}

func disconnect(t *testing.T, hub *Hub, c *Client) {
	t.Helper()

	hub.UnregisterClient(c)
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("cleanup for %s did not finish", c.ID)
	}
}

func rosterIDs(roster []RosterEntry) []string {
	ids := make([]string, 0, len(roster))
	for _, e := range roster {
		ids = append(ids, e.ID)
	}
	return ids
}

type fakeArchiver struct {
	mu        sync.Mutex
	messages  []*Message
	reactions []*Reaction
	order     []string
	got       chan struct{}
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{got: make(chan struct{}, 16)}
}

func (f *fakeArchiver) ArchiveMessage(_ context.Context, msg *Message) error {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.order = append(f.order, "message:"+msg.ID)
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

func (f *fakeArchiver) ArchiveReaction(_ context.Context, r *Reaction) error {
	f.mu.Lock()
	f.reactions = append(f.reactions, r)
	f.order = append(f.order, "reaction:"+r.MessageID)
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

type fakeMirror struct {
	rosters chan []RosterEntry
}

func (f *fakeMirror) MirrorRoster(_ context.Context, _ string, roster []RosterEntry) error {
	f.rosters <- roster
	return nil
}
