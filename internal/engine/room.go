package engine

import (
	"crypto/rand"
	"math/big"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Seednode/partyboxd/internal/clock"
	"github.com/Seednode/partyboxd/internal/quiz"
	"github.com/Seednode/partyboxd/internal/scoring"
)

// RoomConfig holds the process-wide admission/timing knobs a room needs
// (spec.md §6 configuration table) that don't belong to the quiz content
// itself.
type RoomConfig struct {
	MaxPlayers            int
	OrganizerGraceSeconds int
	RoomTTLSeconds        int
	PlayerTimeoutSeconds  int // supplemented; see commands.go playerRemovalCommand
	InboxSize             int
}

// Room is the Room State Machine (C6): the single-owner actor that holds
// a room's authoritative state and processes one command at a time from
// its inbound queue, exactly as the teacher's Hub.run() loop does in
// celebrity.go, generalized from a celebrity-guessing game to the
// lobby/intro/question/reveal/podium quiz lifecycle of spec.md §4.3.
type Room struct {
	Code           string
	OrganizerToken string

	cfg   RoomConfig
	clk   clock.Clock
	log   zerolog.Logger
	onClose func(code string)

	quiz      quiz.Quiz
	timeLimit int // seconds

	registry *Registry
	bus      *Bus

	state                State
	currentQuestionIndex int // -1 before the first question
	questionStart        time.Time
	answers              map[string]*PerQuestionAnswer

	organizerHandle Handle

	createdAt    time.Time
	lastActivity time.Time

	questionTickCancel   clock.Cancel
	questionExpiryCancel clock.Cancel
	organizerGraceCancel clock.Cancel
	ttlCancel            clock.Cancel

	inbox  chan Command
	closed bool
}

// NewRoom constructs a Room in the Lobby state. The caller (Room
// Directory, C7) is responsible for starting Run in its own goroutine.
func NewRoom(code, organizerToken string, q quiz.Quiz, timeLimit int, cfg RoomConfig, clk clock.Clock, log zerolog.Logger, onClose func(code string)) *Room {
	now := clk.Now()
	r := &Room{
		Code:                 code,
		OrganizerToken:       organizerToken,
		cfg:                  cfg,
		clk:                  clk,
		log:                  log.With().Str("room", code).Logger(),
		onClose:              onClose,
		quiz:                 q,
		timeLimit:            timeLimit,
		registry:             NewRegistry(),
		bus:                  NewBus(),
		state:                StateLobby,
		currentQuestionIndex: -1,
		answers:              make(map[string]*PerQuestionAnswer),
		createdAt:            now,
		lastActivity:         now,
		inbox:                make(chan Command, inboxSizeOrDefault(cfg.InboxSize)),
	}
	r.scheduleTTL()
	return r
}

func inboxSizeOrDefault(n int) int {
	if n <= 0 {
		return 256
	}
	return n
}

// Post enqueues a command for processing. It never blocks: if the inbox
// is full the command is rejected with ErrOverloaded instead of stalling
// the caller. The Connection Adapter's dispatch does not check the
// returned error, so a frame rejected this way gets no reply.
func (r *Room) Post(cmd Command) error {
	select {
	case r.inbox <- cmd:
		return nil
	default:
		return ErrOverloaded
	}
}

// postInternal is used by clock callbacks, which must never mutate room
// state directly (§5) — they only ever post a pseudo-command back onto
// the room's own queue. Like Post, it never blocks; a command that does
// not fit in a full inbox is dropped.
func (r *Room) postInternal(cmd Command) {
	select {
	case r.inbox <- cmd:
	default:
		// The room is saturated; drop rather than block the clock's
		// goroutine. A missed tick just means one fewer TIMER event;
		// a missed expiry is recovered by the next tick that finds no
		// time remaining, or by END_QUIZ.
	}
}

// Run drains the inbox until the room closes. Intended to be the body of
// the room's dedicated goroutine.
func (r *Room) Run() {
	r.scheduleTTL()
	for cmd := range r.inbox {
		r.handle(cmd)
		if r.closed {
			return
		}
	}
}

// Close requests an orderly shutdown from outside the room (organizer
// HTTP close, admin action). Safe to call multiple times.
func (r *Room) Close() {
	r.postInternal(closeRoomCommand{})
}

type closeRoomCommand struct{}

func (closeRoomCommand) isCommand() {}

func (r *Room) handle(cmd Command) {
	if !r.closed {
		r.touch()
	}

	switch c := cmd.(type) {
	case JoinCommand:
		r.handleJoin(c)
	case AnswerCommand:
		r.handleAnswer(c)
	case UsePowerUpCommand:
		r.handleUsePowerUp(c)
	case StartGameCommand:
		r.handleStartGame(c)
	case NextQuestionCommand:
		r.handleNextQuestion(c)
	case EndQuizCommand:
		r.handleEndQuiz(c)
	case ResetRoomCommand:
		r.handleResetRoom(c)
	case PlayerDisconnectCommand:
		r.handlePlayerDisconnect(c)
	case OrganizerDisconnectCommand:
		r.handleOrganizerDisconnect(c)
	case OrganizerReconnectCommand:
		r.handleOrganizerReconnect(c)
	case questionTimerTickCommand:
		r.handleQuestionTick(c)
	case questionExpiredCommand:
		r.handleQuestionExpired(c)
	case organizerGraceExpiredCommand:
		r.handleOrganizerGraceExpired()
	case roomTTLExpiredCommand:
		r.handleRoomTTLExpired()
	case playerRemovalCommand:
		r.handlePlayerRemoval(c)
	case attachOrganizerCommand:
		r.handleAttachOrganizer(c)
	case addSpectatorCommand:
		r.handleAddSpectator(c)
	case removeSpectatorCommand:
		r.handleRemoveSpectator(c)
	case closeRoomCommand:
		r.closeRoom("organizer close")
	default:
		r.log.Error().Msgf("internal invariant violation: unknown command %T", cmd)
	}
}

func (r *Room) touch() {
	r.lastActivity = r.clk.Now()
	r.scheduleTTL()
}

func (r *Room) scheduleTTL() {
	if r.cfg.RoomTTLSeconds <= 0 {
		return
	}
	if r.ttlCancel != nil {
		r.ttlCancel()
	}
	r.ttlCancel = r.clk.After(time.Duration(r.cfg.RoomTTLSeconds)*time.Second, func() {
		r.postInternal(roomTTLExpiredCommand{})
	})
}

func (r *Room) sendDirect(h Handle, event any) {
	if h == nil {
		return
	}
	if !h.Send(event) {
		h.Close()
	}
}

// ---- JOIN ----

func (r *Room) handleJoin(c JoinCommand) {
	if r.state == StateClosed {
		r.sendDirect(c.Handle, NewErrorEvent("room is closed"))
		return
	}

	nickname, ok := ValidateNickname(c.Nickname)
	if !ok {
		r.sendDirect(c.Handle, NewErrorEvent("invalid nickname"))
		return
	}
	if !ValidateAvatar(c.Avatar) {
		r.sendDirect(c.Handle, NewErrorEvent("invalid avatar"))
		return
	}
	if !ValidateTeam(c.Team) {
		r.sendDirect(c.Handle, NewErrorEvent("invalid team"))
		return
	}

	existing, hasExisting := r.registry.ById(nickname)

	if hasExisting && existing.Connected() {
		// Nickname collision: the new joiner wins (spec.md §7, §9).
		old := r.registry.ReplaceHandle(nickname, c.Handle)
		existing.Avatar = nonEmptyOr(c.Avatar, existing.Avatar)
		existing.Team = nonEmptyOr(c.Team, existing.Team)
		if old != nil {
			r.sendDirect(old, KickedEvent{Type: "KICKED"})
			r.bus.Remove(old.ID())
			old.Close()
		}
		r.bus.Add(AudiencePlayer, nickname, c.Handle)
		r.sendDirect(c.Handle, NewJoinedRoomEvent(r.state, r.questionNumber(), r.quiz.Len()))
		r.publishAll(NewPlayerRosterEvent("PLAYER_RECONNECTED", r.registry.List()))
		r.maybeSendMidGameProjection(c.Handle, nickname)
		return
	}

	if !hasExisting && r.cfg.MaxPlayers > 0 && r.registry.Count() >= r.cfg.MaxPlayers {
		r.sendDirect(c.Handle, NewErrorEvent("room is full"))
		c.Handle.Close()
		return
	}

	_, wasReconnect := r.registry.Upsert(nickname, c.Avatar, c.Team, c.Handle)
	r.bus.Add(AudiencePlayer, nickname, c.Handle)

	if !wasReconnect && r.state != StateLobby {
		// A latecomer joining after the game has already started has no
		// baseline rank from seedBaselineRanks; give them one now so their
		// first REVEAL's rank_change reflects movement from "just joined
		// in last place", not from the PrevRank zero value.
		r.seedBaselineRanks()
	}

	if wasReconnect {
		r.sendReconnected(c.Handle, nickname)
		r.publishAll(NewPlayerRosterEvent("PLAYER_RECONNECTED", r.registry.List()))
	} else {
		r.publishToNickname(nickname, NewJoinedRoomEvent(r.state, r.questionNumber(), r.quiz.Len()))
		// PLAYER_JOINED goes to everyone but the joiner, who already has
		// JOINED_ROOM.
		joinerID := c.Handle.ID()
		r.reapDropped(r.bus.publish(NewPlayerRosterEvent("PLAYER_JOINED", r.registry.List()), func(s *Subscription) bool {
			return s.Handle.ID() != joinerID
		}))
		r.maybeSendMidGameProjection(c.Handle, nickname)
	}
}

func nonEmptyOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func (r *Room) questionNumber() int {
	if r.currentQuestionIndex < 0 {
		return 0
	}
	return r.currentQuestionIndex + 1
}

// sendReconnected implements P5: the reconnecting player's next event
// reflects the live state they reconnected into, with a live-computed
// time remaining and their own persisted score/streak.
func (r *Room) sendReconnected(h Handle, nickname string) {
	p, _ := r.registry.ById(nickname)
	event := ReconnectedEvent{
		Type:           "RECONNECTED",
		State:          r.state,
		QuestionNumber: r.questionNumber(),
		TotalQuestions: r.quiz.Len(),
		Score:          p.Score,
		Streak:         p.Streak,
	}
	if r.state == StateQuestion {
		event.TimeRemaining = r.remainingSeconds()
		projection := r.currentQuestionProjection()
		event.Question = &projection
	}
	r.sendDirect(h, event)
}

// maybeSendMidGameProjection resolves spec.md §9 Open Question 1: a
// player who joins mid-question sees QUESTION immediately, with the live
// remaining time rather than the full time limit.
func (r *Room) maybeSendMidGameProjection(h Handle, nickname string) {
	if r.state != StateQuestion {
		return
	}
	if _, answered := r.answers[nickname]; answered {
		return
	}
	r.sendDirect(h, r.currentQuestionProjectionWithRemaining())
}

func (r *Room) currentQuestionProjection() QuestionProjection {
	q := r.quiz.At(r.currentQuestionIndex)
	return QuestionProjection{
		Type:           "QUESTION",
		QuestionNumber: r.questionNumber(),
		TotalQuestions: r.quiz.Len(),
		Prompt:         q.Prompt,
		Options:        q.Options,
		TimeLimit:      r.timeLimit,
		IsBonus:        q.Bonus,
	}
}

func (r *Room) currentQuestionProjectionWithRemaining() QuestionProjection {
	p := r.currentQuestionProjection()
	p.TimeLimit = r.remainingSeconds()
	return p
}

func (r *Room) remainingSeconds() int {
	elapsed := r.clk.Now().Sub(r.questionStart)
	remaining := r.timeLimit - int(elapsed.Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ---- ANSWER ----

func (r *Room) handleAnswer(c AnswerCommand) {
	if r.state != StateQuestion {
		r.sendDirect(c.Handle, NewErrorEvent("no question is currently active"))
		return
	}
	if _, answered := r.answers[c.Nickname]; answered {
		r.sendDirect(c.Handle, NewErrorEvent("already answered this question"))
		return
	}
	p, ok := r.registry.ById(c.Nickname)
	if !ok {
		r.sendDirect(c.Handle, NewErrorEvent("unknown participant"))
		return
	}

	q := r.quiz.At(r.currentQuestionIndex)
	if c.OptionIndex < 0 || c.OptionIndex >= len(q.Options) {
		r.sendDirect(c.Handle, NewErrorEvent("option index out of range"))
		return
	}

	now := r.clk.Now()
	elapsed := now.Sub(r.questionStart).Seconds()
	correct := c.OptionIndex == q.CorrectOption
	multiplierUsed := p.Multiplier

	f := scoring.LatencyFraction(elapsed, float64(r.timeLimit))
	result := scoring.Score(correct, f, p.Streak, multiplierUsed, q.Bonus)

	p.Score += result.Points
	p.Streak = result.NewStreak

	r.answers[c.Nickname] = &PerQuestionAnswer{
		ID:          newAnswerID(),
		Nickname:    c.Nickname,
		OptionIndex: c.OptionIndex,
		SubmittedAt: now,
		Correct:     correct,
		Points:      result.Points,
		Multiplier:  multiplierUsed,
	}

	r.publishToNickname(c.Nickname, AnswerResultEvent{
		Type:       "ANSWER_RESULT",
		Correct:    correct,
		Points:     result.Points,
		Multiplier: multiplierUsed,
		Streak:     p.Streak,
	})

	r.publishAudience(AnswerCountEvent{
		Type:     "ANSWER_COUNT",
		Answered: len(r.answers),
		Total:    r.registry.LiveCount(),
	}, AudienceOrganizer, AudienceSpectator)

	if len(r.answers) >= r.registry.LiveCount() {
		r.cancelQuestionTimers()
		r.transitionToReveal()
	}
}

// ---- USE_POWER_UP ----

func (r *Room) handleUsePowerUp(c UsePowerUpCommand) {
	if r.state != StateQuestion {
		r.sendDirect(c.Handle, NewErrorEvent("no question is currently active"))
		return
	}
	if _, answered := r.answers[c.Nickname]; answered {
		r.sendDirect(c.Handle, NewErrorEvent("cannot use a power-up after answering"))
		return
	}
	p, ok := r.registry.ById(c.Nickname)
	if !ok {
		r.sendDirect(c.Handle, NewErrorEvent("unknown participant"))
		return
	}
	if !p.PowerUps[c.PowerUp] {
		r.sendDirect(c.Handle, NewErrorEvent("power-up already used"))
		return
	}

	switch c.PowerUp {
	case PowerUpDoublePoints:
		p.Multiplier = 2.0
		p.PowerUps[c.PowerUp] = false
		r.publishToNickname(c.Nickname, PowerUpActivatedEvent{
			Type:    "POWER_UP_ACTIVATED",
			PowerUp: c.PowerUp,
		})

	case PowerUpFiftyFifty:
		q := r.quiz.At(r.currentQuestionIndex)
		if len(q.Options) != 4 {
			r.sendDirect(c.Handle, NewErrorEvent("fifty_fifty requires a four-option question"))
			return
		}
		remove := pickTwoIncorrect(q, 2)
		p.PowerUps[c.PowerUp] = false
		r.publishToNickname(c.Nickname, PowerUpActivatedEvent{
			Type:          "POWER_UP_ACTIVATED",
			PowerUp:       c.PowerUp,
			RemoveIndices: remove,
		})

	default:
		r.sendDirect(c.Handle, NewErrorEvent("unknown power-up"))
	}
}

// pickTwoIncorrect returns n option indices, excluding the correct one,
// chosen uniformly at random via crypto/rand (matching the teacher's
// rand-based shuffles in celebrity.go, swapped from math/rand to
// crypto/rand since this picks a value visible to, and actionable by, the
// client).
func pickTwoIncorrect(q quiz.Question, n int) []int {
	candidates := make([]int, 0, len(q.Options)-1)
	for i := range q.Options {
		if i != q.CorrectOption {
			candidates = append(candidates, i)
		}
	}
	for i := len(candidates) - 1; i > 0; i-- {
		j := cryptoIntn(i + 1)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	chosen := append([]int(nil), candidates[:n]...)
	sort.Ints(chosen)
	return chosen
}

func cryptoIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// ---- START_GAME ----

func (r *Room) handleStartGame(c StartGameCommand) {
	if !r.isOrganizer(c.Handle) {
		r.sendDirect(c.Handle, NewErrorEvent("unauthorized"))
		return
	}
	if r.state != StateLobby {
		r.sendDirect(c.Handle, NewErrorEvent("command not valid in current state"))
		return
	}
	if r.registry.Count() == 0 {
		r.sendDirect(c.Handle, NewErrorEvent("at least one participant is required to start"))
		return
	}

	r.seedBaselineRanks()

	r.state = StateIntro
	r.publishAll(GameStartingEvent{Type: "GAME_STARTING"})
}

// seedBaselineRanks gives every participant a PrevRank before the first
// question is ever asked, computed with the same ordering sortedLeaderboard
// uses (score desc, nickname asc). Without this, PrevRank's zero value
// would make the first REVEAL's rank_change reflect "moved up from rank
// 0" for everyone instead of the spec's "unranked baseline, no one has
// moved yet" (spec.md §8 scenario 1: rank_change:0 for all participants
// after the first question).
func (r *Room) seedBaselineRanks() {
	for i, entry := range r.sortedLeaderboard() {
		if p, ok := r.registry.ById(entry.Nickname); ok {
			p.PrevRank = i + 1
		}
	}
}

// ---- NEXT_QUESTION ----

func (r *Room) handleNextQuestion(c NextQuestionCommand) {
	if !r.isOrganizer(c.Handle) {
		r.sendDirect(c.Handle, NewErrorEvent("unauthorized"))
		return
	}
	if r.state != StateIntro && r.state != StateReveal {
		r.sendDirect(c.Handle, NewErrorEvent("command not valid in current state"))
		return
	}

	r.currentQuestionIndex++
	if r.currentQuestionIndex >= r.quiz.Len() {
		r.transitionToPodium()
		return
	}

	r.state = StateQuestion
	r.questionStart = r.clk.Now()
	r.answers = make(map[string]*PerQuestionAnswer)
	r.registry.ResetQuestionMultipliers()

	idx := r.currentQuestionIndex
	r.questionTickCancel = r.clk.Every(time.Second, func() {
		r.postInternal(questionTimerTickCommand{questionIndex: idx})
	})
	r.questionExpiryCancel = r.clk.After(time.Duration(r.timeLimit)*time.Second, func() {
		r.postInternal(questionExpiredCommand{questionIndex: idx})
	})

	r.publishAll(r.currentQuestionProjection())
}

func (r *Room) handleQuestionTick(c questionTimerTickCommand) {
	if r.state != StateQuestion || c.questionIndex != r.currentQuestionIndex {
		return
	}
	remaining := r.remainingSeconds()
	r.publishAll(TimerEvent{Type: "TIMER", Remaining: remaining})
	if remaining == 0 {
		// Time is up: close the question here as well, so a dropped
		// expiry command cannot leave it open.
		r.cancelQuestionTimers()
		r.transitionToReveal()
	}
}

func (r *Room) handleQuestionExpired(c questionExpiredCommand) {
	if r.state != StateQuestion || c.questionIndex != r.currentQuestionIndex {
		return
	}
	r.publishAll(TimerEvent{Type: "TIMER", Remaining: 0})
	r.cancelQuestionTimers()
	r.transitionToReveal()
}

func (r *Room) cancelQuestionTimers() {
	if r.questionTickCancel != nil {
		r.questionTickCancel()
		r.questionTickCancel = nil
	}
	if r.questionExpiryCancel != nil {
		r.questionExpiryCancel()
		r.questionExpiryCancel = nil
	}
}

func (r *Room) transitionToReveal() {
	q := r.quiz.At(r.currentQuestionIndex)
	leaderboard := r.computeLeaderboardAndAdvanceRanks()
	isFinal := r.currentQuestionIndex >= r.quiz.Len()-1

	r.state = StateReveal
	r.publishAll(QuestionOverEvent{
		Type:          "QUESTION_OVER",
		CorrectOption: q.CorrectOption,
		Leaderboard:   leaderboard,
		IsFinal:       isFinal,
	})
}

// ---- END_QUIZ ----

func (r *Room) handleEndQuiz(c EndQuizCommand) {
	if !r.isOrganizer(c.Handle) {
		r.sendDirect(c.Handle, NewErrorEvent("unauthorized"))
		return
	}
	if r.state != StateQuestion && r.state != StateReveal {
		r.sendDirect(c.Handle, NewErrorEvent("command not valid in current state"))
		return
	}
	r.cancelQuestionTimers()
	r.transitionToPodium()
}

func (r *Room) transitionToPodium() {
	if r.state == StateQuestion {
		// Rank snapshot still needs refreshing per I6 even when short-circuited.
		r.computeLeaderboardAndAdvanceRanks()
	}
	r.state = StatePodium
	r.publishAll(PodiumEvent{
		Type:              "PODIUM",
		PlayerLeaderboard: r.sortedLeaderboard(),
		TeamLeaderboard:   r.teamLeaderboard(),
	})
}

// ---- RESET_ROOM ----

func (r *Room) handleResetRoom(c ResetRoomCommand) {
	if !r.isOrganizer(c.Handle) {
		r.sendDirect(c.Handle, NewErrorEvent("unauthorized"))
		return
	}
	if r.state != StatePodium {
		r.sendDirect(c.Handle, NewErrorEvent("command not valid in current state"))
		return
	}

	if c.Quiz != nil {
		r.quiz = *c.Quiz
	}
	if c.TimeLimit > 0 {
		r.timeLimit = c.TimeLimit
	}

	r.registry.ResetForReplay()
	r.answers = make(map[string]*PerQuestionAnswer)
	r.currentQuestionIndex = -1
	r.state = StateLobby

	summaries := make([]ParticipantSummary, 0, r.registry.Count())
	for _, p := range r.registry.List() {
		summaries = append(summaries, ParticipantSummary{Nickname: p.Nickname, Avatar: p.Avatar})
	}
	r.publishAll(RoomResetEvent{Type: "ROOM_RESET", Players: summaries})
}

// ---- disconnects / reconnects ----

func (r *Room) handlePlayerDisconnect(c PlayerDisconnectCommand) {
	r.registry.Detach(c.Nickname, c.Handle)
	r.bus.Remove(c.Handle.ID())
	r.publishAll(NewPlayerRosterEvent("PLAYER_DISCONNECTED", r.registry.List()))

	if r.cfg.PlayerTimeoutSeconds > 0 {
		nickname := c.Nickname
		r.clk.After(time.Duration(r.cfg.PlayerTimeoutSeconds)*time.Second, func() {
			r.postInternal(playerRemovalCommand{nickname: nickname})
		})
	}
}

func (r *Room) handlePlayerRemoval(c playerRemovalCommand) {
	p, ok := r.registry.ById(c.nickname)
	if !ok || p.Connected() {
		return
	}
	r.registry.Remove(c.nickname)
	r.publishAll(NewPlayerRosterEvent("PLAYER_LEFT", r.registry.List()))
}

func (r *Room) handleOrganizerDisconnect(c OrganizerDisconnectCommand) {
	if !r.isOrganizer(c.Handle) {
		return
	}
	r.bus.Remove(c.Handle.ID())
	r.organizerHandle = nil

	if r.organizerGraceCancel != nil {
		r.organizerGraceCancel()
	}
	grace := r.cfg.OrganizerGraceSeconds
	if grace < 30 {
		grace = 30
	}
	r.organizerGraceCancel = r.clk.After(time.Duration(grace)*time.Second, func() {
		r.postInternal(organizerGraceExpiredCommand{})
	})

	r.publishAll(OrganizerDisconnectedEvent{Type: "ORGANIZER_DISCONNECTED", GraceSeconds: grace})
}

func (r *Room) handleOrganizerReconnect(c OrganizerReconnectCommand) {
	if r.organizerGraceCancel != nil {
		r.organizerGraceCancel()
		r.organizerGraceCancel = nil
	}
	r.organizerHandle = c.Handle
	r.bus.Add(AudienceOrganizer, "", c.Handle)

	event := OrganizerReconnectedEvent{
		Type:           "ORGANIZER_RECONNECTED",
		State:          r.state,
		QuestionNumber: r.questionNumber(),
		TotalQuestions: r.quiz.Len(),
		AnsweredCount:  len(r.answers),
		Leaderboard:    r.sortedLeaderboard(),
		Quiz:           &quizTitleOnly{Title: r.quiz.Title},
	}
	if r.state == StateQuestion {
		event.TimeRemaining = r.remainingSeconds()
	}
	r.publishOrganizer(event)
}

func (r *Room) handleOrganizerGraceExpired() {
	if r.organizerHandle != nil {
		return // organizer already reconnected; stale timer fire.
	}
	r.closeRoom("organizer grace period expired")
}

func (r *Room) handleRoomTTLExpired() {
	r.closeRoom("idle timeout")
}

func (r *Room) closeRoom(reason string) {
	if r.closed {
		return
	}
	r.closed = true
	r.state = StateClosed
	r.cancelQuestionTimers()
	if r.organizerGraceCancel != nil {
		r.organizerGraceCancel()
	}
	if r.ttlCancel != nil {
		r.ttlCancel()
	}
	r.publishAll(RoomClosedEvent{Type: "ROOM_CLOSED", Reason: reason})
	r.log.Info().Str("reason", reason).Msg("room closed")
	if r.onClose != nil {
		r.onClose(r.Code)
	}
}

func (r *Room) isOrganizer(h Handle) bool {
	return r.organizerHandle != nil && h != nil && r.organizerHandle.ID() == h.ID()
}

// AttachOrganizer is called by the Connection Adapter for every connection
// that presents a valid organizer token. While the organizer grace timer
// is running, the attach is handled as an OrganizerReconnectCommand: the
// timer is cancelled and the connection receives ORGANIZER_RECONNECTED.
func (r *Room) AttachOrganizer(h Handle) {
	r.postInternal(attachOrganizerCommand{handle: h})
}

type attachOrganizerCommand struct{ handle Handle }

func (attachOrganizerCommand) isCommand() {}

func (r *Room) handleAttachOrganizer(c attachOrganizerCommand) {
	if r.organizerGraceCancel != nil {
		r.handleOrganizerReconnect(OrganizerReconnectCommand{Handle: c.handle})
		return
	}
	r.organizerHandle = c.handle
	r.bus.Add(AudienceOrganizer, "", c.handle)
}

// AddSpectator registers a read-only observer.
func (r *Room) AddSpectator(h Handle) {
	r.postInternal(addSpectatorCommand{handle: h})
}

type addSpectatorCommand struct{ handle Handle }

func (addSpectatorCommand) isCommand() {}

func (r *Room) handleAddSpectator(c addSpectatorCommand) {
	r.bus.Add(AudienceSpectator, "", c.handle)
}

// RemoveSpectator drops a disconnected spectator's subscription.
func (r *Room) RemoveSpectator(h Handle) {
	r.postInternal(removeSpectatorCommand{handle: h})
}

type removeSpectatorCommand struct{ handle Handle }

func (removeSpectatorCommand) isCommand() {}

func (r *Room) handleRemoveSpectator(c removeSpectatorCommand) {
	r.bus.Remove(c.handle.ID())
}

// ---- leaderboard derivation ----

func (r *Room) sortedLeaderboard() []LeaderboardEntry {
	participants := r.registry.List()
	sort.SliceStable(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		return participants[i].Nickname < participants[j].Nickname
	})

	entries := make([]LeaderboardEntry, 0, len(participants))
	for i, p := range participants {
		entries = append(entries, LeaderboardEntry{
			Nickname: p.Nickname,
			Score:    p.Score,
			Rank:     i + 1,
		})
	}
	return entries
}

// computeLeaderboardAndAdvanceRanks implements I6: previous rank is
// refreshed only on transition into Reveal, so rank_change reflects the
// question that just ended. It mutates each participant's PrevRank as a
// side effect, so it must be called exactly once per Reveal transition.
func (r *Room) computeLeaderboardAndAdvanceRanks() []LeaderboardEntry {
	entries := r.sortedLeaderboard()
	byNickname := make(map[string]*Participant, len(entries))
	for _, p := range r.registry.List() {
		byNickname[p.Nickname] = p
	}

	for i := range entries {
		p := byNickname[entries[i].Nickname]
		entries[i].RankChange = p.PrevRank - entries[i].Rank
	}
	for i := range entries {
		byNickname[entries[i].Nickname].PrevRank = entries[i].Rank
	}
	return entries
}

func (r *Room) teamLeaderboard() []TeamLeaderboardEntry {
	teams := r.registry.Teams()
	scoreByNickname := make(map[string]int)
	for _, p := range r.registry.List() {
		scoreByNickname[p.Nickname] = p.Score
	}

	entries := make([]TeamLeaderboardEntry, 0, len(teams))
	for team, members := range teams {
		total := 0
		for _, nickname := range members {
			total += scoreByNickname[nickname]
		}
		sort.Strings(members)
		entries = append(entries, TeamLeaderboardEntry{Team: team, Score: total, Members: members})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Team < entries[j].Team
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// ---- publish wrappers: reap connections the bus dropped on overflow ----

// publishAll, publishAudience, publishToNickname, and publishOrganizer
// wrap the identically-named Bus methods and feed every dropped
// subscription to reapDropped, so every call site in this file gets
// overflow handling for free instead of each needing to remember to
// check the return value itself.
func (r *Room) publishAll(event any) {
	r.reapDropped(r.bus.PublishAll(event))
}

func (r *Room) publishAudience(event any, audiences ...Audience) {
	r.reapDropped(r.bus.PublishAudience(event, audiences...))
}

func (r *Room) publishToNickname(nickname string, event any) {
	r.reapDropped(r.bus.PublishToNickname(nickname, event))
}

func (r *Room) publishOrganizer(event any) {
	r.reapDropped(r.bus.PublishOrganizer(event))
}

// reapDropped treats every subscription the bus just dropped for a full
// outbound queue exactly as spec.md §4.5 requires: "on overflow the
// connection is dropped (treated as disconnect)". The socket is closed
// (it would otherwise sit open with nothing ever able to reach it again)
// and the same handler each role's graceful disconnect already uses is
// invoked, so the registry, the organizer grace timer, and the player
// removal reaper all react identically whether the client hung up on its
// own or simply couldn't keep up.
func (r *Room) reapDropped(dropped []*Subscription) {
	for _, sub := range dropped {
		sub.Handle.Close()
		switch sub.Audience {
		case AudienceOrganizer:
			r.handleOrganizerDisconnect(OrganizerDisconnectCommand{Handle: sub.Handle})
		case AudiencePlayer:
			r.handlePlayerDisconnect(PlayerDisconnectCommand{Handle: sub.Handle, Nickname: sub.Nickname})
		case AudienceSpectator:
			// no registry entry and already removed from the bus; nothing
			// further to reconcile.
		}
	}
}

