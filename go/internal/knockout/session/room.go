package session

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/clock"
	"github.com/booxclash/booxclash/go/internal/knockout/events"
	"github.com/booxclash/booxclash/go/internal/knockout/match"
	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/booxclash/booxclash/go/internal/knockout/tournament"
	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Emitter delivers room events to clients. Emit is called with the room
// lock held and must not block.
type Emitter interface {
	Emit(event *events.RoomEvent)
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(event *events.RoomEvent)

func (f EmitterFunc) Emit(event *events.RoomEvent) { f(event) }

// Rand is the randomness a room hands to its scheduler and engine.
// *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// RoomConfig wires a room to its collaborators
type RoomConfig struct {
	Clock     clockwork.Clock
	Questions match.QuestionSource
	Emitter   Emitter
	Rand      Rand
	Rules     match.Rules
	Timing    Timing
}

// Room runs one knockout tournament. All mutations, including timer
// callbacks, happen under mu.
type Room struct {
	id  string
	cfg RoomConfig

	mu        sync.Mutex
	phase     Phase
	topic     match.Topic
	players   []models.Player
	sched     *tournament.Scheduler
	engine    *match.Engine
	pairing   *tournament.Pairing
	live      *match.Match
	lastError string
	stalled   stall
	createdAt time.Time

	intro     *clock.Countdown
	countdown *clock.Countdown
	question  *clock.Countdown
	settle    *clock.Countdown
}

// stall records where a paused tournament stopped so Resume can retry it
type stall int

const (
	stallNone stall = iota
	// the pairing is set but its match could not be created
	stallCreate
	// the live match could not draw its next question
	stallAdvance
)

// NewRoom creates an idle room
func NewRoom(id string, cfg RoomConfig) *Room {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = EmitterFunc(func(*events.RoomEvent) {})
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	r := &Room{
		id:        id,
		cfg:       cfg,
		phase:     PhaseIdle,
		createdAt: cfg.Clock.Now(),
	}
	r.intro = clock.NewCountdown("intro", cfg.Clock, r)
	r.countdown = clock.NewCountdown("countdown", cfg.Clock, r)
	r.question = clock.NewCountdown("question", cfg.Clock, r)
	r.settle = clock.NewCountdown("settle", cfg.Clock, r)
	return r
}

// ID returns the room ID
func (r *Room) ID() string {
	return r.id
}

// Phase returns the current phase
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Do runs fn under the room lock. Closed rooms drop the call.
func (r *Room) Do(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseClosed {
		return
	}
	fn()
}

// Start begins a new tournament for the given players. A room that is
// paused or finished may be started again.
func (r *Room) Start(topic match.Topic, players []models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.phase.Restartable() {
		return fmt.Errorf("%w: room %q is %s", ErrInvalidState, r.id, r.phase)
	}

	sched := tournament.NewScheduler(r.cfg.Rand, r)
	if err := sched.Start(players); err != nil {
		return err
	}

	if r.phase != PhaseIdle {
		r.setPhase(PhaseIdle)
	}
	r.sched = sched
	r.engine = match.NewEngine(r.cfg.Questions, topic, r.cfg.Rand, r.cfg.Rules)
	r.topic = topic
	r.players = slices.Clone(players)
	r.pairing = nil
	r.live = nil
	r.lastError = ""
	r.stalled = stallNone

	log.Info().
		Str("room_id", r.id).
		Str("subject", topic.Subject).
		Str("level", topic.Level).
		Int("players", len(players)).
		Msg("knockout started")

	return r.nextMatch()
}

// Resume continues a paused tournament from where it stopped, keeping the
// bracket and the live match.
func (r *Room) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhasePaused || r.stalled == stallNone {
		return fmt.Errorf("%w: room %q has nothing to resume while %s", ErrInvalidState, r.id, r.phase)
	}

	log.Info().
		Str("room_id", r.id).
		Int("round", r.sched.Round()).
		Msg("resuming knockout")

	switch r.stalled {
	case stallCreate:
		return r.startPairing()
	default:
		if err := r.engine.Advance(r.live); err != nil {
			r.pause(stallAdvance, err)
			return err
		}
		r.clearStall()
		r.beginCountdown()
		return nil
	}
}

// SubmitAnswer judges an answer from the live match's turn owner. A nil
// answer counts as no answer.
func (r *Room) SubmitAnswer(playerID string, answer *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseQuestion || r.live == nil {
		err := fmt.Errorf("%w: room %q is not accepting answers while %s", ErrInvalidState, r.id, r.phase)
		r.reject(playerID, err)
		return err
	}
	if owner := r.live.CurrentPlayer(); owner.ID != playerID {
		err := fmt.Errorf("%w: player %q does not own the current turn", ErrInvalidState, playerID)
		r.reject(playerID, err)
		return err
	}
	return r.judge(playerID, answer)
}

// Close cancels every timer. A closed room ignores all further input.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseClosed {
		return
	}
	r.cancelSlots()
	r.setPhase(PhaseClosed)

	log.Info().Str("room_id", r.id).Msg("room closed")
}

func (r *Room) nextMatch() error {
	p, err := r.sched.Advance()
	if err != nil {
		log.Error().Err(err).Str("room_id", r.id).Msg("failed to advance bracket")
		return err
	}
	if p == nil {
		return nil
	}

	r.pairing = p
	r.live = nil
	return r.startPairing()
}

// startPairing creates the match for the current pairing. The stage intro is
// only announced once the match exists.
func (r *Room) startPairing() error {
	p := r.pairing
	m, err := r.engine.CreateMatch(p.A, p.B)
	if err != nil {
		r.pause(stallCreate, err)
		return err
	}
	r.live = m
	r.clearStall()

	if p.Intro {
		if !r.setPhase(PhaseIntro) {
			return nil
		}
		r.emit(events.EventTypeStageIntro, events.StageIntroPayload{
			Stage:        string(p.Stage),
			Round:        p.Round,
			IntroSeconds: seconds(r.cfg.Timing.IntroFor(p.Stage)),
		})
		r.startSlot(r.intro, r.cfg.Timing.IntroFor(p.Stage), nil, r.announceMatch)
		return nil
	}
	r.announceMatch()
	return nil
}

func (r *Room) announceMatch() {
	r.emit(events.EventTypeMatchAnnounced, events.MatchAnnouncedPayload{
		PlayerA:          r.pairing.A.Ref(),
		PlayerB:          r.pairing.B.Ref(),
		Round:            r.pairing.Round,
		Stage:            string(r.pairing.Stage),
		CountdownSeconds: seconds(r.cfg.Timing.Countdown),
	})
	r.beginCountdown()
}

func (r *Room) beginCountdown() {
	if !r.setPhase(PhaseCountdown) {
		return
	}
	r.startSlot(r.countdown, r.cfg.Timing.Countdown, r.tick(PhaseCountdown), r.beginQuestion)
}

func (r *Room) beginQuestion() {
	if !r.setPhase(PhaseQuestion) {
		return
	}

	m := r.live
	r.emit(events.EventTypeRoundStarted, events.RoundStartedPayload{
		PlayerA:       m.Pair[0].Ref(),
		PlayerB:       m.Pair[1].Ref(),
		TurnOwner:     m.CurrentPlayer().Ref(),
		QuestionIndex: m.QuestionIndex,
		Question:      m.CurrentQuestion().View(),
		TimerSeconds:  seconds(r.cfg.Timing.Answer),
		Scores:        m.ScoresSnapshot(),
	})
	r.startSlot(r.question, r.cfg.Timing.Answer, r.tick(PhaseQuestion), r.timeout)
}

func (r *Room) timeout() {
	owner := r.live.CurrentPlayer()
	log.Debug().
		Str("room_id", r.id).
		Str("player_id", owner.ID).
		Msg("answer timer expired")

	if err := r.judge(owner.ID, nil); err != nil {
		log.Error().Err(err).Str("room_id", r.id).Msg("failed to record timeout")
	}
}

func (r *Room) judge(playerID string, answer *string) error {
	q := r.live.CurrentQuestion()
	out, err := r.engine.SubmitAnswer(r.live, playerID, answer)
	if err != nil {
		r.reject(playerID, err)
		return err
	}

	r.emit(events.EventTypeAnswerResult, events.AnswerResultPayload{
		Player:        r.playerRef(playerID),
		Correct:       out.Correct,
		TimedOut:      out.TimedOut,
		CorrectOption: q.CorrectOption,
		Scores:        r.live.ScoresSnapshot(),
	})

	if !r.setPhase(PhaseSettle) {
		return nil
	}
	r.startSlot(r.settle, r.cfg.Timing.Settle, nil, r.afterSettle)
	return nil
}

func (r *Room) afterSettle() {
	if r.live.Concluded() {
		r.verdict()
		return
	}
	if err := r.engine.Advance(r.live); err != nil {
		r.pause(stallAdvance, err)
		return
	}
	r.beginCountdown()
}

func (r *Room) verdict() {
	if !r.setPhase(PhaseVerdict) {
		return
	}

	winner, _, _ := r.live.Verdict()
	stage := r.pairing.Stage
	if _, err := r.sched.ReportResult(winner.ID); err != nil {
		log.Error().Err(err).Str("room_id", r.id).Msg("failed to record match result")
		return
	}

	r.startSlot(r.settle, r.cfg.Timing.ResultFor(stage), nil, func() {
		_ = r.nextMatch()
	})
}

func (r *Room) pause(at stall, err error) {
	code := events.ErrorCodeInternal
	if errors.Is(err, questionbank.ErrNotFound) {
		code = events.ErrorCodeNotFound
	}

	r.cancelSlots()
	if r.phase != PhasePaused {
		r.setPhase(PhasePaused)
	}
	r.stalled = at
	r.lastError = err.Error()

	log.Error().
		Err(err).
		Str("room_id", r.id).
		Str("subject", r.topic.Subject).
		Str("level", r.topic.Level).
		Msg("room paused")
	r.emit(events.EventTypeError, events.ErrorPayload{Code: code, Message: err.Error()})
}

func (r *Room) clearStall() {
	r.stalled = stallNone
	r.lastError = ""
}

func (r *Room) reject(playerID string, err error) {
	log.Warn().
		Err(err).
		Str("room_id", r.id).
		Str("player_id", playerID).
		Msg("answer rejected")
	r.emitTo(playerID, events.EventTypeError, events.ErrorPayload{
		Code:    events.ErrorCodeInvalidState,
		Message: err.Error(),
	})
}

func (r *Room) tick(phase Phase) func(time.Duration) {
	return func(remaining time.Duration) {
		r.emit(events.EventTypeTimerTick, events.TimerTickPayload{
			Phase:            string(phase),
			TimeRemainingSec: seconds(remaining),
		})
	}
}

// startSlot cancels every other slot so only one timer runs per room
func (r *Room) startSlot(slot *clock.Countdown, d time.Duration, onTick func(time.Duration), onExpire func()) {
	for _, other := range r.slots() {
		if other != slot {
			other.Cancel()
		}
	}
	slot.Start(d, onTick, onExpire)
}

func (r *Room) cancelSlots() {
	for _, slot := range r.slots() {
		slot.Cancel()
	}
}

func (r *Room) slots() []*clock.Countdown {
	return []*clock.Countdown{r.intro, r.countdown, r.question, r.settle}
}

func (r *Room) setPhase(to Phase) bool {
	if !CanTransition(r.phase, to) {
		log.Error().
			Str("room_id", r.id).
			Str("from", string(r.phase)).
			Str("to", string(to)).
			Msg("illegal room transition")
		return false
	}
	r.phase = to
	return true
}

func (r *Room) playerRef(playerID string) models.PlayerRef {
	for _, p := range r.live.Pair {
		if p.ID == playerID {
			return p.Ref()
		}
	}
	return models.PlayerRef{ID: playerID}
}

func (r *Room) emit(eventType events.EventType, payload any) {
	r.emitTo("", eventType, payload)
}

func (r *Room) emitTo(playerID string, eventType events.EventType, payload any) {
	evt, err := events.New(r.id, eventType, r.cfg.Clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", r.id).Msg("failed to build event")
		return
	}
	evt.TargetPlayerID = playerID

	log.Debug().
		Str("room_id", r.id).
		Str("event_type", string(eventType)).
		Str("player_id", playerID).
		Msg("emitting event")
	r.cfg.Emitter.Emit(evt)
}

// Tournament listener callbacks. The scheduler calls these with the room
// lock already held.

// OnStageIntro only logs. The room announces the stage after the first
// match of the stage has been created.
func (r *Room) OnStageIntro(stage tournament.Stage, round int) {
	log.Info().
		Str("room_id", r.id).
		Str("stage", string(stage)).
		Int("round", round).
		Msg("stage reached")
}

func (r *Room) OnMatchStart(p tournament.Pairing) {
	log.Info().
		Str("room_id", r.id).
		Str("player_a", p.A.ID).
		Str("player_b", p.B.ID).
		Int("round", p.Round).
		Msg("match starting")
}

func (r *Room) OnBye(p models.Player, round int) {
	r.emit(events.EventTypePlayerBye, events.PlayerByePayload{
		Player: p.Ref(),
		Round:  round,
	})
}

func (r *Room) OnMatchEnd(res tournament.Result) {
	r.emit(events.EventTypeMatchConcluded, events.MatchConcludedPayload{
		Winner:   res.Winner.Ref(),
		Loser:    res.Loser.Ref(),
		Round:    res.Round,
		Stage:    string(res.Stage),
		Scores:   r.live.ScoresSnapshot(),
		TieBreak: r.live.DecidedByTieBreak(),
	})
}

func (r *Room) OnChampion(champion models.Player, matchesPlayed int) {
	r.cancelSlots()
	r.setPhase(PhaseFinished)
	r.pairing = nil
	r.live = nil

	log.Info().
		Str("room_id", r.id).
		Str("champion_id", champion.ID).
		Int("matches", matchesPlayed).
		Msg("knockout finished")
	r.emit(events.EventTypeTournamentOver, events.TournamentOverPayload{
		Champion:      champion.Ref(),
		MatchesPlayed: matchesPlayed,
		Rounds:        r.sched.Round(),
	})
}
