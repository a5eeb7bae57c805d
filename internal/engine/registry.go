package engine

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Registry is the Participant Registry (C2): nickname -> Participant,
// insertion-ordered. It is never accessed from more than one goroutine at
// a time — it is owned exclusively by its room's single-owner actor loop
// (§5), so it carries no internal locking, mirroring the teacher's Hub
// which mutates h.players only from within h.run().
type Registry struct {
	order []string
	byID  map[string]*Participant
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Participant)}
}

const (
	maxNicknameLen = 20
	maxAvatarLen   = 8
	maxTeamLen     = 20
)

// ValidateNickname enforces spec.md §4.2: trimmed length 1..20, not
// whitespace-only.
func ValidateNickname(nickname string) (string, bool) {
	trimmed := strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 || n > maxNicknameLen {
		return "", false
	}
	return trimmed, true
}

// ValidateAvatar enforces the <=8 code point constraint.
func ValidateAvatar(avatar string) bool {
	return utf8.RuneCountInString(avatar) <= maxAvatarLen
}

// ValidateTeam enforces the <=20 code point constraint.
func ValidateTeam(team string) bool {
	return utf8.RuneCountInString(team) <= maxTeamLen
}

// Upsert inserts a new participant or reattaches an existing one's handle.
// wasReconnect is true when nickname already had a record (score/streak
// carried over); false for a brand-new participant.
func (r *Registry) Upsert(nickname, avatar, team string, handle Handle) (p *Participant, wasReconnect bool) {
	if existing, ok := r.byID[nickname]; ok {
		existing.Handle = handle
		existing.LastSeen = time.Now()
		if avatar != "" {
			existing.Avatar = avatar
		}
		if team != "" {
			existing.Team = team
		}
		return existing, true
	}

	p = &Participant{
		Nickname:   nickname,
		Avatar:     avatar,
		Team:       team,
		Multiplier: 1.0,
		PowerUps: map[PowerUp]bool{
			PowerUpDoublePoints: true,
			PowerUpFiftyFifty:   true,
		},
		Handle:   handle,
		LastSeen: time.Now(),
	}
	r.byID[nickname] = p
	r.order = append(r.order, nickname)
	return p, false
}

// Detach clears a participant's handle, but only if it currently matches
// handle — this prevents a stale close from a superseded connection from
// knocking a newer, legitimate connection offline (spec.md §4.2).
func (r *Registry) Detach(nickname string, handle Handle) {
	p, ok := r.byID[nickname]
	if !ok || p.Handle == nil || p.Handle.ID() != handle.ID() {
		return
	}
	p.Handle = nil
	p.LastSeen = time.Now()
}

// ReplaceHandle installs newHandle as the participant's connection,
// returning whatever handle was previously attached (nil if none) so the
// caller can notify and close it — nickname collision: the new joiner
// always wins.
func (r *Registry) ReplaceHandle(nickname string, newHandle Handle) Handle {
	p, ok := r.byID[nickname]
	if !ok {
		return nil
	}
	old := p.Handle
	p.Handle = newHandle
	p.LastSeen = time.Now()
	return old
}

// ById looks up a participant by nickname.
func (r *Registry) ById(nickname string) (*Participant, bool) {
	p, ok := r.byID[nickname]
	return p, ok
}

// List returns participants in insertion (join) order.
func (r *Registry) List() []*Participant {
	out := make([]*Participant, 0, len(r.order))
	for _, nickname := range r.order {
		out = append(out, r.byID[nickname])
	}
	return out
}

// Remove deletes a participant entirely (used when a disconnected
// player's removal timer fires).
func (r *Registry) Remove(nickname string) {
	if _, ok := r.byID[nickname]; !ok {
		return
	}
	delete(r.byID, nickname)
	for i, n := range r.order {
		if n == nickname {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered participants.
func (r *Registry) Count() int { return len(r.order) }

// LiveCount returns the number of participants with a currently connected
// handle — used to decide early-all-answered transitions.
func (r *Registry) LiveCount() int {
	n := 0
	for _, p := range r.byID {
		if p.Connected() {
			n++
		}
	}
	return n
}

// Teams derives a nickname-grouped-by-team view on demand; teams are never
// stored as their own structure (spec.md §4.2: "Teams are derived on
// demand by grouping").
func (r *Registry) Teams() map[string][]string {
	teams := make(map[string][]string)
	for _, nickname := range r.order {
		p := r.byID[nickname]
		if p.Team == "" {
			continue
		}
		teams[p.Team] = append(teams[p.Team], nickname)
	}
	return teams
}

// ResetForReplay clears score, streak, power-ups, and multiplier for every
// participant but keeps nickname/avatar/team/handle intact (spec.md §9
// Open Question 2, resolved in DESIGN.md: team survives, score/streak/
// power-ups/multiplier do not).
func (r *Registry) ResetForReplay() {
	for _, p := range r.byID {
		p.Score = 0
		p.Streak = 0
		p.Multiplier = 1.0
		p.PrevRank = 0
		p.PowerUps = map[PowerUp]bool{
			PowerUpDoublePoints: true,
			PowerUpFiftyFifty:   true,
		}
	}
}

// ResetQuestionMultipliers resets every participant's active multiplier to
// 1.0 at the start of a new question (spec.md §4.3 NEXT_QUESTION handler).
func (r *Registry) ResetQuestionMultipliers() {
	for _, p := range r.byID {
		p.Multiplier = 1.0
	}
}
