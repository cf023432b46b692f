package session

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/events"
	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	all []*events.RoomEvent
	ch  chan *events.RoomEvent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *events.RoomEvent, 8192)}
}

func (r *recorder) Emit(evt *events.RoomEvent) {
	r.mu.Lock()
	r.all = append(r.all, evt)
	r.mu.Unlock()

	select {
	case r.ch <- evt:
	default:
	}
}

func (r *recorder) count(eventType events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, evt := range r.all {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.all)
}

func testTiming() Timing {
	return Timing{
		Intro:        time.Second,
		FinalsIntro:  time.Second,
		Countdown:    time.Second,
		Answer:       3 * time.Second,
		Settle:       500 * time.Millisecond,
		Result:       500 * time.Millisecond,
		FinalsResult: 500 * time.Millisecond,
	}
}

func testCatalog() questionbank.Catalog {
	return questionbank.Catalog{
		"math": {
			"easy": {
				{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: "4"},
			},
		},
	}
}

func testBank() *questionbank.Bank {
	return questionbank.NewBank(testCatalog(), nil)
}

func newTestSession(t *testing.T, bank *questionbank.Bank) (*GameSession, *clockwork.FakeClock, *recorder) {
	t.Helper()

	clk := clockwork.NewFakeClock()
	rec := newRecorder()
	opts := DefaultOptions()
	opts.Timing = testTiming()
	opts.NewRand = SeededRand(42)

	sess := NewGameSession(NewRegistry(), bank, rec, clk, opts)
	t.Cleanup(sess.Close)
	return sess, clk, rec
}

func makePlayers(n int) []models.Player {
	players := make([]models.Player, n)
	for i := range players {
		players[i] = models.Player{ID: fmt.Sprintf("p%d", i+1), Name: fmt.Sprintf("Player %d", i+1)}
	}
	return players
}

func ptr(s string) *string { return &s }

// waitFor steps the fake clock until one of the wanted event types arrives.
// Events of other types are skipped.
func waitFor(t *testing.T, clk *clockwork.FakeClock, rec *recorder, want ...events.EventType) *events.RoomEvent {
	t.Helper()

	for range 5000 {
		select {
		case evt := <-rec.ch:
			if slices.Contains(want, evt.Type) {
				return evt
			}
			continue
		case <-time.After(5 * time.Millisecond):
		}
		clk.Advance(100 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", want)
	return nil
}

func decode[T any](t *testing.T, evt *events.RoomEvent) *T {
	t.Helper()

	payload, err := events.DecodePayload(evt)
	require.NoError(t, err)
	typed, ok := payload.(*T)
	require.True(t, ok, "unexpected payload %T", payload)
	return typed
}

// playOut answers every question with option until the tournament ends
func playOut(t *testing.T, sess *GameSession, clk *clockwork.FakeClock, rec *recorder, roomID, option string) *events.TournamentOverPayload {
	t.Helper()

	for {
		evt := waitFor(t, clk, rec, events.EventTypeRoundStarted, events.EventTypeTournamentOver)
		if evt.Type == events.EventTypeTournamentOver {
			return decode[events.TournamentOverPayload](t, evt)
		}

		round := decode[events.RoundStartedPayload](t, evt)
		require.NoError(t, sess.PlayerAnswered(roomID, round.TurnOwner.ID, ptr(option)))
	}
}

func TestFullKnockoutWithFourPlayers(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(4)))

	over := playOut(t, sess, clk, rec, "room-1", "4")

	assert.NotEmpty(t, over.Champion.ID)
	assert.Equal(t, 3, over.MatchesPlayed)
	assert.Equal(t, 3, rec.count(events.EventTypeMatchConcluded))
	assert.Equal(t, 3, rec.count(events.EventTypeMatchAnnounced))
	assert.Equal(t, 1, rec.count(events.EventTypeTournamentOver))
	assert.Equal(t, 2, rec.count(events.EventTypeStageIntro))
	assert.Zero(t, rec.count(events.EventTypePlayerBye))
	// three correct answers per match: first player 2, second player 1
	assert.Equal(t, 9, rec.count(events.EventTypeAnswerResult))

	state, err := sess.RoomState("room-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseFinished, state.Phase)
	require.NotNil(t, state.Tournament)
	require.NotNil(t, state.Tournament.Champion)
	assert.Equal(t, over.Champion.ID, state.Tournament.Champion.ID)
	assert.Nil(t, state.Match)
}

func TestOddPlayerCountGrantsBye(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-odd", "math", "easy", makePlayers(3)))

	over := playOut(t, sess, clk, rec, "room-odd", "4")

	assert.Equal(t, 2, over.MatchesPlayed)
	assert.Equal(t, 2, rec.count(events.EventTypeMatchConcluded))
	assert.Equal(t, 1, rec.count(events.EventTypePlayerBye))
}

func TestMatchConcludedCarriesVerdict(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	first := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	assert.Equal(t, 3, first.TimerSeconds)
	assert.Equal(t, []string{"3", "4"}, first.Question.Options)
	require.NoError(t, sess.PlayerAnswered("room-1", first.TurnOwner.ID, ptr("4")))

	second := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	assert.NotEqual(t, first.TurnOwner.ID, second.TurnOwner.ID)
	require.NoError(t, sess.PlayerAnswered("room-1", second.TurnOwner.ID, ptr("3")))

	third := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	assert.Equal(t, first.TurnOwner.ID, third.TurnOwner.ID)
	assert.Equal(t, 1, third.QuestionIndex)
	require.NoError(t, sess.PlayerAnswered("room-1", third.TurnOwner.ID, ptr("4")))

	concluded := decode[events.MatchConcludedPayload](t, waitFor(t, clk, rec, events.EventTypeMatchConcluded))
	assert.Equal(t, first.TurnOwner.ID, concluded.Winner.ID)
	assert.Equal(t, second.TurnOwner.ID, concluded.Loser.ID)
	assert.Equal(t, 2, concluded.Scores[first.TurnOwner.ID])
	assert.Equal(t, 0, concluded.Scores[second.TurnOwner.ID])
	assert.False(t, concluded.TieBreak)

	waitFor(t, clk, rec, events.EventTypeTournamentOver)
}

func TestUnansweredQuestionTimesOut(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	round := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	result := decode[events.AnswerResultPayload](t, waitFor(t, clk, rec, events.EventTypeAnswerResult))

	assert.Equal(t, round.TurnOwner.ID, result.Player.ID)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Correct)
	assert.Equal(t, 0, result.Scores[round.TurnOwner.ID])
}

func TestAllTimeoutsStillProduceChampion(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	concluded := decode[events.MatchConcludedPayload](t, waitFor(t, clk, rec, events.EventTypeMatchConcluded))
	assert.True(t, concluded.TieBreak)
	assert.Equal(t, 6, rec.count(events.EventTypeAnswerResult))

	over := decode[events.TournamentOverPayload](t, waitFor(t, clk, rec, events.EventTypeTournamentOver))
	assert.Equal(t, concluded.Winner.ID, over.Champion.ID)
}

func TestAnswerFromWrongPlayerRejected(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	round := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	other := round.PlayerA
	if other.ID == round.TurnOwner.ID {
		other = round.PlayerB
	}

	err := sess.PlayerAnswered("room-1", other.ID, ptr("4"))
	assert.ErrorIs(t, err, ErrInvalidState)

	evt := waitFor(t, clk, rec, events.EventTypeError)
	assert.Equal(t, other.ID, evt.TargetPlayerID)
	payload := decode[events.ErrorPayload](t, evt)
	assert.Equal(t, events.ErrorCodeInvalidState, payload.Code)

	state, err := sess.RoomState("room-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseQuestion, state.Phase)
	require.NotNil(t, state.Match)
	assert.Equal(t, round.TurnOwner.ID, state.Match.TurnOwner.ID)
	assert.Equal(t, 0, state.Match.Scores[other.ID])
	require.NotNil(t, state.Match.Question)
	assert.Equal(t, "2+2?", state.Match.Question.Prompt)
}

func TestAnswerOutsideQuestionRejected(t *testing.T) {
	sess, _, _ := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	state, err := sess.RoomState("room-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseIntro, state.Phase)

	err = sess.PlayerAnswered("room-1", "p1", ptr("4"))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUnknownRoom(t *testing.T) {
	sess, _, _ := newTestSession(t, testBank())

	assert.ErrorIs(t, sess.PlayerAnswered("nope", "p1", ptr("4")), ErrRoomNotFound)
	_, err := sess.RoomState("nope")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, sess.Discard("nope"), ErrRoomNotFound)
}

func TestMissingQuestionPoolPausesRoom(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())

	err := sess.HostStart("room-1", "history", "hard", makePlayers(2))
	assert.ErrorIs(t, err, questionbank.ErrNotFound)

	payload := decode[events.ErrorPayload](t, waitFor(t, clk, rec, events.EventTypeError))
	assert.Equal(t, events.ErrorCodeNotFound, payload.Code)

	state, err := sess.RoomState("room-1")
	require.NoError(t, err)
	assert.Equal(t, PhasePaused, state.Phase)
	assert.NotEmpty(t, state.LastError)

	// other rooms keep working
	require.NoError(t, sess.HostStart("room-2", "math", "easy", makePlayers(2)))

	// the host can retry the paused room with a pool that exists
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))
	state, err = sess.RoomState("room-1")
	require.NoError(t, err)
	assert.Equal(t, PhaseIntro, state.Phase)
	assert.Empty(t, state.LastError)
}

func TestResumeKeepsBracketAfterMissingPool(t *testing.T) {
	bank := testBank()
	sess, clk, rec := newTestSession(t, bank)
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(4)))

	// every answer is correct, so each match takes three answers
	for range 6 {
		round := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
		require.NoError(t, sess.PlayerAnswered("room-1", round.TurnOwner.ID, ptr("4")))
	}

	// the pool disappears before the semi-final can be created
	bank.Replace(questionbank.Catalog{})
	payload := decode[events.ErrorPayload](t, waitFor(t, clk, rec, events.EventTypeError))
	assert.Equal(t, events.ErrorCodeNotFound, payload.Code)

	state, err := sess.RoomState("room-1")
	require.NoError(t, err)
	assert.Equal(t, PhasePaused, state.Phase)
	require.NotNil(t, state.Tournament)
	assert.Equal(t, 2, state.Tournament.MatchesPlayed)
	assert.Equal(t, 2, state.Tournament.Round)
	assert.Equal(t, 2, rec.count(events.EventTypeMatchConcluded))
	// no intro for a match that could not start
	assert.Equal(t, 1, rec.count(events.EventTypeStageIntro))

	assert.ErrorIs(t, sess.Resume("room-1"), questionbank.ErrNotFound)

	bank.Replace(testCatalog())
	require.NoError(t, sess.Resume("room-1"))

	intro := decode[events.StageIntroPayload](t, waitFor(t, clk, rec, events.EventTypeStageIntro))
	assert.Equal(t, "Semi-Finals", intro.Stage)

	over := playOut(t, sess, clk, rec, "room-1", "4")
	assert.Equal(t, 3, over.MatchesPlayed)
	assert.Equal(t, 3, rec.count(events.EventTypeMatchConcluded))
}

func TestResumeRedrawsQuestionForLiveMatch(t *testing.T) {
	bank := testBank()
	sess, clk, rec := newTestSession(t, bank)
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	first := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	require.NoError(t, sess.PlayerAnswered("room-1", first.TurnOwner.ID, ptr("4")))
	second := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	require.NoError(t, sess.PlayerAnswered("room-1", second.TurnOwner.ID, ptr("3")))

	// the next question round cannot draw
	bank.Replace(questionbank.Catalog{})
	waitFor(t, clk, rec, events.EventTypeError)

	state, err := sess.RoomState("room-1")
	require.NoError(t, err)
	assert.Equal(t, PhasePaused, state.Phase)
	require.NotNil(t, state.Match)
	assert.Equal(t, 1, state.Match.Scores[first.TurnOwner.ID])
	assert.Equal(t, 0, state.Match.Scores[second.TurnOwner.ID])

	bank.Replace(testCatalog())
	require.NoError(t, sess.Resume("room-1"))

	third := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	assert.Equal(t, first.TurnOwner.ID, third.TurnOwner.ID)
	assert.Equal(t, 1, third.QuestionIndex)
	assert.Equal(t, 1, third.Scores[first.TurnOwner.ID])
}

func TestResumeRequiresPausedRoom(t *testing.T) {
	sess, _, _ := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	assert.ErrorIs(t, sess.Resume("room-1"), ErrInvalidState)
	assert.ErrorIs(t, sess.Resume("nope"), ErrRoomNotFound)
}

func TestAnswerResultRevealsCorrectOption(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	round := decode[events.RoundStartedPayload](t, waitFor(t, clk, rec, events.EventTypeRoundStarted))
	require.NoError(t, sess.PlayerAnswered("room-1", round.TurnOwner.ID, ptr("3")))

	result := decode[events.AnswerResultPayload](t, waitFor(t, clk, rec, events.EventTypeAnswerResult))
	assert.False(t, result.Correct)
	assert.Equal(t, "4", result.CorrectOption)
}

func TestConfigErrorRegistersNoRoom(t *testing.T) {
	sess, _, rec := newTestSession(t, testBank())

	err := sess.HostStart("room-1", "math", "easy", makePlayers(1))
	assert.ErrorIs(t, err, ErrConfig)

	_, err = sess.RoomState("room-1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, sess.ActiveRooms())
	assert.Zero(t, rec.len())
}

func TestStartWhileRunningRejected(t *testing.T) {
	sess, _, _ := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))

	err := sess.HostStart("room-1", "math", "easy", makePlayers(2))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDiscardStopsTimers(t *testing.T) {
	sess, clk, rec := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("room-1", "math", "easy", makePlayers(2)))
	waitFor(t, clk, rec, events.EventTypeRoundStarted)

	require.NoError(t, sess.Discard("room-1"))
	_, err := sess.RoomState("room-1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	before := rec.len()
	for range 50 {
		clk.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, before, rec.len())
}

func TestActiveRoomsListing(t *testing.T) {
	sess, _, _ := newTestSession(t, testBank())
	require.NoError(t, sess.HostStart("b-room", "math", "easy", makePlayers(2)))
	require.NoError(t, sess.HostStart("a-room", "math", "easy", makePlayers(3)))

	rooms := sess.ActiveRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, "a-room", rooms[0].RoomID)
	assert.Equal(t, 3, rooms[0].Players)
	assert.Equal(t, 1, rooms[0].Round)
	assert.Equal(t, "b-room", rooms[1].RoomID)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(PhaseIdle, PhaseIntro))
	assert.True(t, CanTransition(PhaseSettle, PhaseVerdict))
	assert.True(t, CanTransition(PhaseVerdict, PhaseFinished))
	assert.True(t, CanTransition(PhaseQuestion, PhaseClosed))
	assert.True(t, CanTransition(PhasePaused, PhaseIntro))
	assert.True(t, CanTransition(PhasePaused, PhaseCountdown))
	assert.False(t, CanTransition(PhasePaused, PhaseQuestion))
	assert.False(t, CanTransition(PhaseIntro, PhaseQuestion))
	assert.False(t, CanTransition(PhaseFinished, PhaseQuestion))
	assert.False(t, CanTransition(PhaseClosed, PhaseClosed))

	assert.True(t, PhasePaused.Restartable())
	assert.False(t, PhaseQuestion.Restartable())
}

func TestTimingForStages(t *testing.T) {
	timing := DefaultTiming()
	assert.Equal(t, 5*time.Second, timing.IntroFor("Knockout Stage"))
	assert.Equal(t, 10*time.Second, timing.IntroFor("Finals"))
	assert.Equal(t, 2500*time.Millisecond, timing.ResultFor("Semi-Finals"))
	assert.Equal(t, 4*time.Second, timing.ResultFor("Finals"))
	assert.Equal(t, 2, seconds(1500*time.Millisecond))
	assert.Equal(t, 15, seconds(timing.Answer))
}
