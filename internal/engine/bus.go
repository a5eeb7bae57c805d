package engine

// Bus is the per-room Event Bus (C3): typed publish/subscribe to
// subscribers classified by Audience, with bounded non-blocking delivery.
// Like Registry, a Bus belongs to exactly one room and is only ever
// touched from that room's actor goroutine (§5) — the teacher's
// broadcast-with-select-default-drop loops in celebrity.go
// (broadcastCelebritiesLocked, broadcastGameStateLocked) are the model,
// generalized here into one reusable publish path instead of one
// hand-written loop per message type.
type Bus struct {
	order []string
	subs  map[string]*Subscription
}

// Subscription is one connected audience member.
type Subscription struct {
	Audience Audience
	Nickname string // empty for organizer/spectator; set for player
	Handle   Handle
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Add registers handle as a subscriber. If handle.ID() is already
// subscribed, it is replaced (this is how organizer reconnect and player
// handle replacement re-home an existing subscription).
func (b *Bus) Add(audience Audience, nickname string, handle Handle) {
	id := handle.ID()
	if _, exists := b.subs[id]; !exists {
		b.order = append(b.order, id)
	}
	b.subs[id] = &Subscription{Audience: audience, Nickname: nickname, Handle: handle}
}

// Remove drops a subscriber by connection id. Safe to call for an id that
// isn't present.
func (b *Bus) Remove(id string) {
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of current subscribers.
func (b *Bus) Count() int { return len(b.order) }

// publish delivers event to every subscription matching keep, in
// subscription order, using each subscriber's bounded non-blocking Send.
// Subscriptions whose queue is full are treated as disconnected: they are
// removed from the bus and returned to the caller so the room actor can
// also detach them from the participant registry and, for the organizer,
// kick off the grace-timer path.
func (b *Bus) publish(event any, keep func(*Subscription) bool) []*Subscription {
	var dropped []*Subscription
	for _, id := range append([]string(nil), b.order...) {
		sub, ok := b.subs[id]
		if !ok || !keep(sub) {
			continue
		}
		if !sub.Handle.Send(event) {
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		b.Remove(sub.Handle.ID())
	}
	return dropped
}

// PublishAll delivers event to every subscriber regardless of audience.
func (b *Bus) PublishAll(event any) []*Subscription {
	return b.publish(event, func(*Subscription) bool { return true })
}

// PublishAudience delivers event only to subscribers in one of the given
// audiences (e.g. organizer + spectators for ANSWER_COUNT).
func (b *Bus) PublishAudience(event any, audiences ...Audience) []*Subscription {
	set := make(map[Audience]bool, len(audiences))
	for _, a := range audiences {
		set[a] = true
	}
	return b.publish(event, func(s *Subscription) bool { return set[s.Audience] })
}

// PublishToNickname delivers event only to the player subscription with
// the given nickname — the mechanism for private events (ANSWER_RESULT,
// POWER_UP_ACTIVATED, KICKED).
func (b *Bus) PublishToNickname(nickname string, event any) []*Subscription {
	return b.publish(event, func(s *Subscription) bool {
		return s.Audience == AudiencePlayer && s.Nickname == nickname
	})
}

// PublishOrganizer delivers event only to the organizer subscription, if
// one is currently connected.
func (b *Bus) PublishOrganizer(event any) []*Subscription {
	return b.PublishAudience(event, AudienceOrganizer)
}
