package engine

import "testing"

type fakeHandle struct {
	id       string
	inbox    []any
	capacity int
	closed   bool
}

func newFakeHandle(id string, capacity int) *fakeHandle {
	return &fakeHandle{id: id, capacity: capacity}
}

func (f *fakeHandle) Send(event any) bool {
	if len(f.inbox) >= f.capacity {
		return false
	}
	f.inbox = append(f.inbox, event)
	return true
}

func (f *fakeHandle) Close()     { f.closed = true }
func (f *fakeHandle) ID() string { return f.id }

func TestBusPublishAudience(t *testing.T) {
	b := NewBus()
	org := newFakeHandle("org", 8)
	alice := newFakeHandle("alice-conn", 8)
	spectator := newFakeHandle("spec", 8)

	b.Add(AudienceOrganizer, "", org)
	b.Add(AudiencePlayer, "alice", alice)
	b.Add(AudienceSpectator, "", spectator)

	b.PublishAudience("answer_count", AudienceOrganizer, AudienceSpectator)

	if len(org.inbox) != 1 {
		t.Fatalf("expected organizer to receive 1 event, got %d", len(org.inbox))
	}
	if len(spectator.inbox) != 1 {
		t.Fatalf("expected spectator to receive 1 event, got %d", len(spectator.inbox))
	}
	if len(alice.inbox) != 0 {
		t.Fatalf("expected player to receive 0 events, got %d", len(alice.inbox))
	}
}

func TestBusPublishToNicknamePrivate(t *testing.T) {
	b := NewBus()
	alice := newFakeHandle("alice-conn", 8)
	bob := newFakeHandle("bob-conn", 8)
	b.Add(AudiencePlayer, "alice", alice)
	b.Add(AudiencePlayer, "bob", bob)

	b.PublishToNickname("alice", "answer_result")

	if len(alice.inbox) != 1 {
		t.Fatalf("expected alice to receive the private event")
	}
	if len(bob.inbox) != 0 {
		t.Fatalf("expected bob to receive nothing")
	}
}

func TestBusDropsOnFullQueue(t *testing.T) {
	b := NewBus()
	slow := newFakeHandle("slow", 1)
	b.Add(AudiencePlayer, "slow", slow)

	b.PublishAll("first")
	dropped := b.PublishAll("second")

	if len(dropped) != 1 {
		t.Fatalf("expected the second publish to drop the full subscriber, got %d", len(dropped))
	}
	if b.Count() != 0 {
		t.Fatalf("expected dropped subscriber to be removed from the bus, count=%d", b.Count())
	}
}

func TestBusPublishOrderPreservesFIFO(t *testing.T) {
	b := NewBus()
	h := newFakeHandle("h", 8)
	b.Add(AudiencePlayer, "p", h)

	b.PublishAll("one")
	b.PublishAll("two")
	b.PublishAll("three")

	want := []any{"one", "two", "three"}
	if len(h.inbox) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(h.inbox))
	}
	for i, w := range want {
		if h.inbox[i] != w {
			t.Errorf("event %d: want %v, got %v", i, w, h.inbox[i])
		}
	}
}
