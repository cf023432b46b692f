package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleRoomConnection handles GET /ws/room?room_id=&player_id=&name=&role=&max_players=
// max_players is only read from hosts.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	roomID := query.Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	role := Role(query.Get("role"))
	switch role {
	case "":
		role = RolePlayer
	case RoleHost, RolePlayer:
	default:
		http.Error(w, "role must be host or player", http.StatusBadRequest)
		return
	}

	// Identity comes from the lobby; anonymous clients get a fresh ID
	playerID := query.Get("player_id")
	if playerID == "" {
		playerID = uuid.New().String()
	}
	name := query.Get("name")
	if name == "" {
		name = playerID
	}

	maxPlayers := 0
	if raw := query.Get("max_players"); raw != "" && role == RoleHost {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "max_players must be a non-negative integer", http.StatusBadRequest)
			return
		}
		maxPlayers = n
	}

	if err := h.connectionManager.Admit(roomID, playerID, role); err != nil {
		if errors.Is(err, ErrRoomFull) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	player := models.Player{ID: playerID, Name: name}
	if err := h.connectionManager.UpgradeConnection(w, r, player, role, roomID, maxPlayers); err != nil {
		// the upgrader has already written an HTTP error
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
