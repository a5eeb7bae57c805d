package engine

// Event is anything the room actor publishes through the Bus. Every
// concrete event type carries its own "type" JSON discriminator, matching
// spec.md §6's outbound frame table, and is serialized verbatim by the
// Connection Adapter (C8) — the engine package never touches JSON or a
// socket itself.
//
// JoinedRoomEvent, ReconnectedEvent and OrganizerReconnectedEvent carry
// the State the room was in when they were emitted; the other event types
// have no state field.

type ParticipantSummary struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type JoinedRoomEvent struct {
	Type           string `json:"type"`
	State          State  `json:"state"`
	QuestionNumber int    `json:"question_number,omitempty"`
	TotalQuestions int    `json:"total_questions"`
}

func NewJoinedRoomEvent(state State, questionNumber, total int) JoinedRoomEvent {
	return JoinedRoomEvent{Type: "JOINED_ROOM", State: state, QuestionNumber: questionNumber, TotalQuestions: total}
}

type ReconnectedEvent struct {
	Type           string    `json:"type"`
	State          State     `json:"state"`
	QuestionNumber int       `json:"question_number,omitempty"`
	TotalQuestions int       `json:"total_questions"`
	Question       *QuestionProjection `json:"question,omitempty"`
	TimeRemaining  int       `json:"time_remaining,omitempty"`
	Score          int       `json:"score"`
	Streak         int       `json:"streak"`
}

type PlayerRosterEvent struct {
	Type        string               `json:"type"` // PLAYER_JOINED / PLAYER_LEFT / PLAYER_DISCONNECTED / PLAYER_RECONNECTED
	Players     []ParticipantSummary `json:"players"`
	PlayerCount int                  `json:"player_count"`
}

func NewPlayerRosterEvent(eventType string, participants []*Participant) PlayerRosterEvent {
	summaries := make([]ParticipantSummary, 0, len(participants))
	for _, p := range participants {
		summaries = append(summaries, ParticipantSummary{Nickname: p.Nickname, Avatar: p.Avatar})
	}
	return PlayerRosterEvent{Type: eventType, Players: summaries, PlayerCount: len(summaries)}
}

type GameStartingEvent struct {
	Type string `json:"type"`
}

// QuestionProjection is the wire payload for QUESTION: identical for
// every audience. The correct option index is never included (spec.md
// §6: "correct index never sent to players" — read here as never sent
// to anyone before the reveal; organizers learn it only via
// QUESTION_OVER).
type QuestionProjection struct {
	Type           string   `json:"type"`
	QuestionNumber int      `json:"question_number"`
	TotalQuestions int      `json:"total_questions"`
	Prompt         string   `json:"prompt"`
	Options        []string `json:"options"`
	TimeLimit      int      `json:"time_limit"`
	IsBonus        bool     `json:"is_bonus"`
}

type TimerEvent struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining"`
}

type AnswerResultEvent struct {
	Type       string  `json:"type"`
	Correct    bool    `json:"correct"`
	Points     int     `json:"points"`
	Multiplier float64 `json:"multiplier"`
	Streak     int     `json:"streak"`
}

type AnswerCountEvent struct {
	Type     string `json:"type"`
	Answered int    `json:"answered"`
	Total    int    `json:"total"`
}

type PowerUpActivatedEvent struct {
	Type          string `json:"type"`
	PowerUp       PowerUp `json:"power_up"`
	RemoveIndices []int   `json:"remove_indices,omitempty"`
}

type QuestionOverEvent struct {
	Type          string             `json:"type"`
	CorrectOption int                `json:"correct_option"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	IsFinal       bool               `json:"is_final"`
}

type PodiumEvent struct {
	Type              string                 `json:"type"`
	PlayerLeaderboard []LeaderboardEntry     `json:"player_leaderboard"`
	TeamLeaderboard   []TeamLeaderboardEntry `json:"team_leaderboard"`
}

type RoomResetEvent struct {
	Type    string               `json:"type"`
	Players []ParticipantSummary `json:"players"`
}

type OrganizerDisconnectedEvent struct {
	Type         string `json:"type"`
	GraceSeconds int    `json:"grace_seconds"`
}

type OrganizerReconnectedEvent struct {
	Type           string              `json:"type"`
	State          State               `json:"state"`
	QuestionNumber int                 `json:"question_number,omitempty"`
	TotalQuestions int                 `json:"total_questions"`
	TimeRemaining  int                 `json:"time_remaining,omitempty"`
	AnsweredCount  int                 `json:"answered_count"`
	Leaderboard    []LeaderboardEntry  `json:"leaderboard"`
	Quiz           *quizTitleOnly      `json:"quiz,omitempty"`
}

type quizTitleOnly struct {
	Title string `json:"title"`
}

type RoomClosedEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type KickedEvent struct {
	Type string `json:"type"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "ERROR", Message: message}
}
