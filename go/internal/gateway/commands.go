package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/booxclash/booxclash/go/internal/knockout/events"
	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/booxclash/booxclash/go/internal/knockout/session"
	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Client message types
const (
	MessageTypeStartKnockout  = "startKnockout"
	MessageTypeResumeKnockout = "resumeKnockout"
	MessageTypeAnswer         = "answer"
)

// ClientMessage is the JSON a client sends over its socket
type ClientMessage struct {
	Type    string  `json:"type"`
	RoomID  string  `json:"room_id"`
	Subject string  `json:"subject,omitempty"`
	Level   string  `json:"level,omitempty"`
	Option  *string `json:"option,omitempty"`
}

// GameController is the part of the game session the gateway drives
type GameController interface {
	HostStart(roomID, subject, level string, players []models.Player) error
	Resume(roomID string) error
	PlayerAnswered(roomID, playerID string, answer *string) error
	RoomState(roomID string) (session.RoomState, error)
	ActiveRooms() []session.RoomSummary
	Discard(roomID string) error
}

// CommandRouter turns client messages into game session calls
type CommandRouter struct {
	game        GameController
	connections *ConnectionManager
}

// NewCommandRouter creates a router over a game session
func NewCommandRouter(game GameController, cm *ConnectionManager) *CommandRouter {
	return &CommandRouter{
		game:        game,
		connections: cm,
	}
}

// HandleMessage processes one client message
func (r *CommandRouter) HandleMessage(conn *Connection, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		r.replyError(conn, events.ErrorCodeBadRequest, fmt.Errorf("malformed message: %w", err))
		return
	}
	if msg.RoomID == "" {
		msg.RoomID = conn.RoomID
	}
	if msg.RoomID != conn.RoomID {
		r.replyError(conn, events.ErrorCodeBadRequest, fmt.Errorf("connection belongs to room %q", conn.RoomID))
		return
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("room_id", conn.RoomID).
		Str("type", msg.Type).
		Msg("received client message")

	var err error
	switch msg.Type {
	case MessageTypeStartKnockout:
		err = r.startKnockout(conn, msg)
	case MessageTypeResumeKnockout:
		if conn.Role != RoleHost {
			err = fmt.Errorf("%w: only the host can resume a knockout", session.ErrInvalidState)
			break
		}
		err = r.game.Resume(msg.RoomID)
	case MessageTypeAnswer:
		// the room already told the player why an answer was rejected
		if err = r.game.PlayerAnswered(msg.RoomID, conn.PlayerID, msg.Option); errors.Is(err, session.ErrInvalidState) {
			return
		}
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		r.replyError(conn, errorCode(err), err)
	}
}

// RoomEmptied discards the room once its last connection leaves
func (r *CommandRouter) RoomEmptied(roomID string) {
	if err := r.game.Discard(roomID); err != nil && !errors.Is(err, session.ErrRoomNotFound) {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to discard room")
	}
}

func (r *CommandRouter) startKnockout(conn *Connection, msg ClientMessage) error {
	if conn.Role != RoleHost {
		return fmt.Errorf("%w: only the host can start a knockout", session.ErrInvalidState)
	}
	return r.game.HostStart(msg.RoomID, msg.Subject, msg.Level, r.connections.Participants(msg.RoomID))
}

func (r *CommandRouter) replyError(conn *Connection, code string, err error) {
	log.Warn().
		Err(err).
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Msg("client message rejected")

	evt, buildErr := events.New(conn.RoomID, events.EventTypeError, r.connections.clock.Now(), events.ErrorPayload{
		Code:    code,
		Message: err.Error(),
	})
	if buildErr != nil {
		log.Error().Err(buildErr).Msg("failed to build error event")
		return
	}
	evt.TargetPlayerID = conn.PlayerID
	conn.sendEvent(evt)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, questionbank.ErrNotFound), errors.Is(err, session.ErrRoomNotFound):
		return events.ErrorCodeNotFound
	case errors.Is(err, session.ErrInvalidState):
		return events.ErrorCodeInvalidState
	default:
		return events.ErrorCodeBadRequest
	}
}
