package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/booxclash/booxclash/go/internal/knockout/session"
	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// AdminServiceName is the fully-qualified name of the admin service
	AdminServiceName = "booxclash.knockout.v1.KnockoutAdminService"

	AdminStartTournamentProcedure  = "/" + AdminServiceName + "/StartTournament"
	AdminGetRoomStateProcedure     = "/" + AdminServiceName + "/GetRoomState"
	AdminResumeTournamentProcedure = "/" + AdminServiceName + "/ResumeTournament"
)

// AdminService lets operators start and inspect rooms over Connect RPC.
// Messages are google.protobuf.Struct values.
type AdminService struct {
	game        GameController
	connections *ConnectionManager
}

// NewAdminService creates the admin service
func NewAdminService(game GameController, cm *ConnectionManager) *AdminService {
	return &AdminService{
		game:        game,
		connections: cm,
	}
}

// NewAdminServiceHandler builds an HTTP handler serving the admin service
func NewAdminServiceHandler(svc *AdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	startHandler := connect.NewUnaryHandler(AdminStartTournamentProcedure, svc.StartTournament, opts...)
	stateHandler := connect.NewUnaryHandler(AdminGetRoomStateProcedure, svc.GetRoomState, opts...)
	resumeHandler := connect.NewUnaryHandler(AdminResumeTournamentProcedure, svc.ResumeTournament, opts...)

	return "/" + AdminServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case AdminStartTournamentProcedure:
			startHandler.ServeHTTP(w, r)
		case AdminGetRoomStateProcedure:
			stateHandler.ServeHTTP(w, r)
		case AdminResumeTournamentProcedure:
			resumeHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// StartTournament starts a knockout. Fields: room_id, subject, level and an
// optional players list of {id, name}; without players the room's
// connected participants play.
func (s *AdminService) StartTournament(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	roomID := fields["room_id"].GetStringValue()
	if roomID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("room_id is required"))
	}

	players, err := playersFromStruct(fields["players"])
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if len(players) == 0 && s.connections != nil {
		players = s.connections.Participants(roomID)
	}

	subject := fields["subject"].GetStringValue()
	level := fields["level"].GetStringValue()
	if err := s.game.HostStart(roomID, subject, level, players); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().
		Str("room_id", roomID).
		Int("players", len(players)).
		Msg("knockout started by admin")
	return s.stateResponse(roomID)
}

// GetRoomState returns the snapshot of a room. Fields: room_id.
func (s *AdminService) GetRoomState(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	roomID := req.Msg.GetFields()["room_id"].GetStringValue()
	if roomID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("room_id is required"))
	}
	return s.stateResponse(roomID)
}

// ResumeTournament continues a paused room with its bracket intact. Fields: room_id.
func (s *AdminService) ResumeTournament(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	roomID := req.Msg.GetFields()["room_id"].GetStringValue()
	if roomID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("room_id is required"))
	}
	if err := s.game.Resume(roomID); err != nil {
		return nil, toConnectError(err)
	}

	log.Info().Str("room_id", roomID).Msg("knockout resumed by admin")
	return s.stateResponse(roomID)
}

func (s *AdminService) stateResponse(roomID string) (*connect.Response[structpb.Struct], error) {
	state, err := s.game.RoomState(roomID)
	if err != nil {
		return nil, toConnectError(err)
	}

	msg, err := toStruct(state)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func playersFromStruct(value *structpb.Value) ([]models.Player, error) {
	list := value.GetListValue()
	if list == nil {
		return nil, nil
	}

	players := make([]models.Player, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		fields := item.GetStructValue().GetFields()
		id := fields["id"].GetStringValue()
		if id == "" {
			return nil, fmt.Errorf("players[%d] has no id", i)
		}
		name := fields["name"].GetStringValue()
		if name == "" {
			name = id
		}
		players = append(players, models.Player{ID: id, Name: name})
	}
	return players, nil
}

// toStruct converts a JSON-tagged value into a protobuf Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return structpb.NewStruct(m)
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrRoomNotFound), errors.Is(err, questionbank.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, session.ErrConfig):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, session.ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
