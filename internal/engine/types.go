// Package engine implements the Participant Registry (C2), Event Bus (C3),
// and Room State Machine (C6) from spec.md §4.2, §4.5, §4.3: the part of
// the system that owns a single room's authoritative state and runs it as
// a single-owner actor, grounded on the teacher's Hub in
// Seednode-partybox's celebrity.go.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// State is one of the Room State Machine's states (spec.md §4.3).
type State string

const (
	StateLobby    State = "LOBBY"
	StateIntro    State = "INTRO"
	StateQuestion State = "QUESTION"
	StateReveal   State = "REVEAL"
	StatePodium   State = "PODIUM"
	StateClosed   State = "CLOSED"
)

// PowerUp is a one-shot per-player modifier (spec.md glossary).
type PowerUp string

const (
	PowerUpDoublePoints PowerUp = "double_points"
	PowerUpFiftyFifty   PowerUp = "fifty_fifty"
)

// Audience classifies a subscriber for the Event Bus (C3): organizer is a
// singleton, player and spectator may be many.
type Audience int

const (
	AudienceOrganizer Audience = iota
	AudiencePlayer
	AudienceSpectator
)

func (a Audience) String() string {
	switch a {
	case AudienceOrganizer:
		return "organizer"
	case AudiencePlayer:
		return "player"
	case AudienceSpectator:
		return "spectator"
	default:
		return "unknown"
	}
}

// Handle is the room actor's view of a connection: a bounded, non-blocking
// sink for outbound events plus enough identity to route private events
// and kick a displaced connection. Implemented by internal/transport's
// Client; the room actor never touches a network socket directly (§5).
type Handle interface {
	// Send enqueues an event for delivery. It must never block; if the
	// subscriber's bounded queue is full, Send returns false and the
	// caller (the event bus) treats this as a dropped/disconnected
	// subscriber per spec.md §4.5.
	Send(event any) bool

	// Close terminates the underlying connection. Idempotent.
	Close()

	// ID is an opaque per-connection identifier, used only for logging
	// and for recognizing "this exact handle" during Detach/displacement.
	ID() string
}

// Participant is a per-nickname record in a room's registry (spec.md §3).
// Score and streak persist across disconnect/reconnect; only the handle
// and last-seen timestamp change on reconnection.
type Participant struct {
	Nickname   string
	Avatar     string
	Team       string
	Score      int
	Streak     int
	PowerUps   map[PowerUp]bool // true while the power-up is still available; consumed on use
	Multiplier float64          // active multiplier for the current question, default 1.0
	PrevRank   int              // rank as of the start of the question currently being scored
	Handle     Handle           // nil when disconnected
	LastSeen   time.Time
}

// Connected reports whether this participant currently has a live handle.
func (p *Participant) Connected() bool { return p.Handle != nil }

// PerQuestionAnswer records one player's answer to the current question.
// At most one per (question, nickname); cleared on question advance. ID
// is assigned at submission time and is stable for that answer record
// even if the question is later re-scored (it never is, but it gives log
// lines and any future audit export a join key independent of nickname).
type PerQuestionAnswer struct {
	ID          string
	Nickname    string
	OptionIndex int
	SubmittedAt time.Time
	Correct     bool
	Points      int
	Multiplier  float64
}

func newAnswerID() string { return uuid.NewString() }

// LeaderboardEntry is one row of a derived leaderboard snapshot (spec.md
// §4.3: "derived by a stable sort on demand — never the source of truth").
type LeaderboardEntry struct {
	Nickname   string `json:"nickname"`
	Score      int    `json:"score"`
	Rank       int    `json:"rank"`
	RankChange int    `json:"rank_change"`
}

// TeamLeaderboardEntry is one row of the team-grouped leaderboard shown on
// PODIUM (spec.md §6, supplemented per SPEC_FULL.md §4).
type TeamLeaderboardEntry struct {
	Team  string   `json:"team"`
	Score int      `json:"score"`
	Rank  int      `json:"rank"`
	Members []string `json:"members"`
}
