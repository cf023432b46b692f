package session

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/match"
	"github.com/booxclash/booxclash/go/internal/knockout/tournament"
	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRoomNotFound is returned for rooms that were never started or were discarded
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidState is returned for input the room cannot accept right now
	ErrInvalidState = match.ErrInvalidState
	// ErrConfig is returned when a tournament cannot start with the given players
	ErrConfig = tournament.ErrConfig
)

// Options tunes the rooms a GameSession creates
type Options struct {
	Timing Timing
	Rules  match.Rules
	// NewRand returns the randomness for a room. Nil seeds from the clock.
	NewRand func(roomID string) Rand
}

// DefaultOptions returns production timing and rules
func DefaultOptions() Options {
	return Options{
		Timing: DefaultTiming(),
		Rules:  match.DefaultRules(),
	}
}

// SeededRand returns a NewRand that gives every room the same seed
func SeededRand(seed int64) func(string) Rand {
	return func(string) Rand {
		return rand.New(rand.NewSource(seed))
	}
}

// GameSession binds knockout tournaments to rooms
type GameSession struct {
	registry  *Registry
	questions match.QuestionSource
	emitter   Emitter
	clock     clockwork.Clock
	opts      Options
}

// NewGameSession creates a session over an injected room registry
func NewGameSession(registry *Registry, questions match.QuestionSource, emitter Emitter, clk clockwork.Clock, opts Options) *GameSession {
	if opts.NewRand == nil {
		opts.NewRand = func(string) Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		}
	}
	return &GameSession{
		registry:  registry,
		questions: questions,
		emitter:   emitter,
		clock:     clk,
		opts:      opts,
	}
}

// HostStart starts a knockout in a room. Configuration errors leave no
// room behind; a missing question pool leaves the room paused.
func (g *GameSession) HostStart(roomID, subject, level string, players []models.Player) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", ErrConfig)
	}

	room, created := g.registry.GetOrCreate(roomID, func() *Room {
		return NewRoom(roomID, RoomConfig{
			Clock:     g.clock,
			Questions: g.questions,
			Emitter:   g.emitter,
			Rand:      g.opts.NewRand(roomID),
			Rules:     g.opts.Rules,
			Timing:    g.opts.Timing,
		})
	})

	err := room.Start(match.Topic{Subject: subject, Level: level}, players)
	if err != nil && created && errors.Is(err, ErrConfig) {
		g.registry.Remove(roomID)
		room.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to start knockout in room %q: %w", roomID, err)
	}
	return nil
}

// Resume continues a paused room with its bracket intact. Use HostStart to
// throw the bracket away instead.
func (g *GameSession) Resume(roomID string) error {
	room, ok := g.registry.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	if err := room.Resume(); err != nil {
		return fmt.Errorf("failed to resume knockout in room %q: %w", roomID, err)
	}
	return nil
}

// PlayerAnswered forwards an answer to the room. A nil answer means the
// player gave none.
func (g *GameSession) PlayerAnswered(roomID, playerID string, answer *string) error {
	room, ok := g.registry.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	return room.SubmitAnswer(playerID, answer)
}

// RoomState returns a snapshot of a room
func (g *GameSession) RoomState(roomID string) (RoomState, error) {
	room, ok := g.registry.Get(roomID)
	if !ok {
		return RoomState{}, fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	return room.Snapshot(), nil
}

// ActiveRooms lists every registered room
func (g *GameSession) ActiveRooms() []RoomSummary {
	rooms := g.registry.List()
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

// Discard closes a room and forgets it
func (g *GameSession) Discard(roomID string) error {
	room, ok := g.registry.Remove(roomID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	room.Close()

	log.Info().Str("room_id", roomID).Msg("room discarded")
	return nil
}

// Close discards every room
func (g *GameSession) Close() {
	g.registry.Close()
}
