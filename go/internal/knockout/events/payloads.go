package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/google/uuid"
)

// RoomEvent is the envelope for every message sent to a room
type RoomEvent struct {
	ID             string          `json:"id"`                         // Event UUID
	RoomID         string          `json:"room_id"`                    // Room the event belongs to
	Type           EventType       `json:"type"`                       // Event type
	Timestamp      time.Time       `json:"timestamp"`                  // Event creation time
	TargetPlayerID string          `json:"target_player_id,omitempty"` // Optional: only this player receives it
	Data           json.RawMessage `json:"data"`                       // Event-specific payload
}

// EventType represents the type of room event
type EventType string

const (
	EventTypeStageIntro     EventType = "StageIntro"
	EventTypeMatchAnnounced EventType = "MatchAnnounced"
	EventTypeRoundStarted   EventType = "RoundStarted"
	EventTypeTimerTick      EventType = "TimerTick"
	EventTypeAnswerResult   EventType = "AnswerResult"
	EventTypePlayerBye      EventType = "PlayerBye"
	EventTypeMatchConcluded EventType = "MatchConcluded"
	EventTypeTournamentOver EventType = "TournamentOver"
	EventTypeError          EventType = "Error"
	EventTypePlayersUpdated EventType = "PlayersUpdated"
)

// Error codes carried by ErrorPayload
const (
	ErrorCodeNotFound     = "not_found"
	ErrorCodeInvalidState = "invalid_state"
	ErrorCodeBadRequest   = "bad_request"
	ErrorCodeInternal     = "internal"
)

// New wraps a payload into an event stamped with a fresh ID
func New(roomID string, eventType EventType, at time.Time, payload any) (*RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &RoomEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// StageIntroPayload announces a new stage of the bracket
type StageIntroPayload struct {
	Stage        string `json:"stage"`
	Round        int    `json:"round"`
	IntroSeconds int    `json:"intro_seconds"`
}

// MatchAnnouncedPayload names the two players about to face each other
type MatchAnnouncedPayload struct {
	PlayerA          models.PlayerRef `json:"player_a"`
	PlayerB          models.PlayerRef `json:"player_b"`
	Round            int              `json:"round"`
	Stage            string           `json:"stage"`
	CountdownSeconds int              `json:"countdown_seconds"`
}

// RoundStartedPayload opens a question for the turn owner
type RoundStartedPayload struct {
	PlayerA       models.PlayerRef    `json:"player_a"`
	PlayerB       models.PlayerRef    `json:"player_b"`
	TurnOwner     models.PlayerRef    `json:"turn_owner"`
	QuestionIndex int                 `json:"question_index"`
	Question      models.QuestionView `json:"question"`
	TimerSeconds  int                 `json:"timer_seconds"`
	Scores        map[string]int      `json:"scores"`
}

// TimerTickPayload is sent once per second while a timer runs
type TimerTickPayload struct {
	Phase            string `json:"phase"`
	TimeRemainingSec int    `json:"time_remaining_sec"`
}

// AnswerResultPayload reports the judgement of one answer
type AnswerResultPayload struct {
	Player   models.PlayerRef `json:"player"`
	Correct  bool             `json:"correct"`
	TimedOut bool             `json:"timed_out"`
	// revealed once the question is closed
	CorrectOption string         `json:"correct_option"`
	Scores        map[string]int `json:"scores"`
}

// PlayerByePayload reports a player advancing without a match
type PlayerByePayload struct {
	Player models.PlayerRef `json:"player"`
	Round  int              `json:"round"`
}

// MatchConcludedPayload reports the verdict of a match
type MatchConcludedPayload struct {
	Winner   models.PlayerRef `json:"winner"`
	Loser    models.PlayerRef `json:"loser"`
	Round    int              `json:"round"`
	Stage    string           `json:"stage"`
	Scores   map[string]int   `json:"scores"`
	TieBreak bool             `json:"tie_break"`
}

// TournamentOverPayload names the champion
type TournamentOverPayload struct {
	Champion      models.PlayerRef `json:"champion"`
	MatchesPlayed int              `json:"matches_played"`
	Rounds        int              `json:"rounds"`
}

// ErrorPayload describes a rejected action or a stalled room
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PlayersUpdatedPayload is the lobby roster, sent whenever a player joins or leaves
type PlayersUpdatedPayload struct {
	Players     []models.PlayerRef `json:"players"`
	JoinedCount int                `json:"joined_count"`
	MaxPlayers  int                `json:"max_players,omitempty"` // 0 means no limit
}

// DecodePayload parses event data into the matching payload struct
func DecodePayload(event *RoomEvent) (any, error) {
	var payload any
	switch event.Type {
	case EventTypeStageIntro:
		payload = &StageIntroPayload{}
	case EventTypeMatchAnnounced:
		payload = &MatchAnnouncedPayload{}
	case EventTypeRoundStarted:
		payload = &RoundStartedPayload{}
	case EventTypeTimerTick:
		payload = &TimerTickPayload{}
	case EventTypeAnswerResult:
		payload = &AnswerResultPayload{}
	case EventTypePlayerBye:
		payload = &PlayerByePayload{}
	case EventTypeMatchConcluded:
		payload = &MatchConcludedPayload{}
	case EventTypeTournamentOver:
		payload = &TournamentOverPayload{}
	case EventTypeError:
		payload = &ErrorPayload{}
	case EventTypePlayersUpdated:
		payload = &PlayersUpdatedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}

	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
	}
	return payload, nil
}
