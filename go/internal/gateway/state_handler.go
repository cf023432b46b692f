package gateway

import (
	"errors"
	"net/http"

	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/booxclash/booxclash/go/internal/knockout/session"
	"github.com/rs/zerolog/log"
)

// SubjectLister describes the question catalog
type SubjectLister interface {
	Subjects() []questionbank.PoolInfo
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	game     GameController
	subjects SubjectLister
}

// NewStateHandler creates a new state handler
func NewStateHandler(game GameController, subjects SubjectLister) *StateHandler {
	return &StateHandler{
		game:     game,
		subjects: subjects,
	}
}

// HandleGetRoomState handles GET /api/rooms/{id}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	state, err := h.game.RoomState(roomID)
	if errors.Is(err, session.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// HandleGetActiveRooms handles GET /api/rooms/active
func (h *StateHandler) HandleGetActiveRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.game.ActiveRooms())
}

// HandleGetSubjects handles GET /api/questions/subjects
func (h *StateHandler) HandleGetSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.subjects.Subjects())
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/active", h.HandleGetActiveRooms)
	mux.HandleFunc("GET /api/rooms/{id}/state", h.HandleGetRoomState)
	mux.HandleFunc("GET /api/questions/subjects", h.HandleGetSubjects)
}
