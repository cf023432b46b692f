package gateway

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/booxclash/booxclash/go/internal/knockout/events"
	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrRoomFull is returned when a new player joins a room at capacity
var ErrRoomFull = errors.New("room is full")

// Role is what a connection may do in its room
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// MessageHandler reacts to client traffic
type MessageHandler interface {
	HandleMessage(conn *Connection, message []byte)
	RoomEmptied(roomID string)
}

// ConnectionManager manages WebSocket connections grouped by room
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[string]map[*Connection]bool
	// Player limits set by each room's host
	capacity map[string]int
	joinSeq  uint64
	mu       sync.RWMutex
	clock    clockwork.Clock

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	PlayerID string
	Name     string
	Role     Role
	RoomID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	seq uint64 // join order within the manager
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	// MaxPlayers caps rooms whose host set no limit. 0 means unlimited.
	MaxPlayers int
	Clock      clockwork.Clock
}

// BroadcastMessage represents a message to broadcast to connections
type BroadcastMessage struct {
	RoomID   string
	Event    *events.RoomEvent
	PlayerID string // Optional: if set, only send to this player
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		Clock: clockwork.NewRealClock(),
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		capacity:        make(map[string]int),
		clock:           config.Clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Handle sets the handler for client messages. Call before serving.
func (cm *ConnectionManager) Handle(handler MessageHandler) {
	cm.handler = handler
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Admit reports whether a player may join a room. Hosts are always admitted.
func (cm *ConnectionManager) Admit(roomID, playerID string, role Role) error {
	if role != RolePlayer {
		return nil
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.admitLocked(roomID, playerID)
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. A host's
// maxPlayers, when positive, becomes the room's player limit.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, player models.Player, role Role, roomID string, maxPlayers int) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    player.ID,
		Name:        player.Name,
		Role:        role,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
	}

	if err := cm.registerConnection(connection, maxPlayers); err != nil {
		// another player took the last seat after Admit
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(cm.config.WriteTimeout))
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", player.ID).
		Str("room_id", roomID).
		Str("role", string(role)).
		Msg("WebSocket connection established")

	cm.broadcastRoster(roomID)
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection, maxPlayers int) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	switch {
	case conn.Role == RoleHost && maxPlayers > 0:
		cm.capacity[conn.RoomID] = maxPlayers
	case conn.Role == RolePlayer:
		if err := cm.admitLocked(conn.RoomID, conn.PlayerID); err != nil {
			return err
		}
	}

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.joinSeq++
	conn.seq = cm.joinSeq
	cm.roomConnections[conn.RoomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
	return nil
}

// admitLocked checks the room's player limit. A player who is already
// connected may open another connection.
func (cm *ConnectionManager) admitLocked(roomID, playerID string) error {
	limit := cm.capacityLocked(roomID)
	if limit <= 0 {
		return nil
	}

	players := make(map[string]bool)
	for conn := range cm.roomConnections[roomID] {
		if conn.Role == RolePlayer {
			players[conn.PlayerID] = true
		}
	}
	if players[playerID] || len(players) < limit {
		return nil
	}
	return fmt.Errorf("%w: room %q allows %d players", ErrRoomFull, roomID, limit)
}

func (cm *ConnectionManager) capacityLocked(roomID string) int {
	if limit, ok := cm.capacity[roomID]; ok {
		return limit
	}
	return cm.config.MaxPlayers
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	emptied := false
	removed := false

	cm.mu.Lock()
	if connections, exists := cm.roomConnections[conn.RoomID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)
			removed = true

			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomID)
				delete(cm.capacity, conn.RoomID)
				emptied = true
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("player_id", conn.PlayerID).
				Str("room_id", conn.RoomID).
				Msg("connection unregistered")
		}
	}
	cm.mu.Unlock()

	if emptied {
		if cm.handler != nil {
			cm.handler.RoomEmptied(conn.RoomID)
		}
		return
	}
	if removed && conn.Role == RolePlayer {
		cm.broadcastRoster(conn.RoomID)
	}
}

// broadcastRoster tells the room who is in the lobby
func (cm *ConnectionManager) broadcastRoster(roomID string) {
	players := cm.Participants(roomID)
	refs := make([]models.PlayerRef, 0, len(players))
	for _, p := range players {
		refs = append(refs, p.Ref())
	}

	cm.mu.RLock()
	limit := cm.capacityLocked(roomID)
	cm.mu.RUnlock()

	evt, err := events.New(roomID, events.EventTypePlayersUpdated, cm.clock.Now(), events.PlayersUpdatedPayload{
		Players:     refs,
		JoinedCount: len(refs),
		MaxPlayers:  limit,
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build roster event")
		return
	}
	cm.BroadcastToRoom(roomID, evt)
}

// Emit routes a room event to its room, or to one player when targeted
func (cm *ConnectionManager) Emit(event *events.RoomEvent) {
	if event.TargetPlayerID != "" {
		cm.BroadcastToPlayer(event.RoomID, event.TargetPlayerID, event)
		return
	}
	cm.BroadcastToRoom(event.RoomID, event)
}

// BroadcastToRoom sends an event to all connections in a room
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event *events.RoomEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Event: event}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToPlayer sends an event to one player's connections in a room
func (cm *ConnectionManager) BroadcastToPlayer(roomID, playerID string, event *events.RoomEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Event: event, PlayerID: playerID}:
	default:
		log.Warn().
			Str("room_id", roomID).
			Str("player_id", playerID).
			Msg("broadcast channel full, dropping player message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Send channels are closed under the write lock, so every send happens
	// while the read lock is held
	var slow []*Connection
	sent := 0
	cm.mu.RLock()
	for conn := range cm.roomConnections[message.RoomID] {
		if message.PlayerID != "" && conn.PlayerID != message.PlayerID {
			continue
		}
		select {
		case conn.Send <- eventData:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_id", message.RoomID).
		Int("connections", sent).
		Msg("event broadcasted")
}

// Participants returns the distinct non-host players connected to a room,
// in the order they joined
func (cm *ConnectionManager) Participants(roomID string) []models.Player {
	cm.mu.RLock()
	var conns []*Connection
	for conn := range cm.roomConnections[roomID] {
		if conn.Role == RolePlayer {
			conns = append(conns, conn)
		}
	}
	cm.mu.RUnlock()

	slices.SortFunc(conns, func(a, b *Connection) int {
		return cmp.Compare(a.seq, b.seq)
	})

	seen := make(map[string]bool, len(conns))
	players := make([]models.Player, 0, len(conns))
	for _, conn := range conns {
		if seen[conn.PlayerID] {
			continue
		}
		seen[conn.PlayerID] = true
		players = append(players, models.Player{ID: conn.PlayerID, Name: conn.Name})
	}
	return players
}

// RoomConnections returns how many connections a room has
func (cm *ConnectionManager) RoomConnections(roomID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.roomConnections[roomID])
}

// ConnectionStats summarizes the open connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:     len(cm.roomConnections),
		RoomConnections: make(map[string]int, len(cm.roomConnections)),
	}
	for roomID, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID] = len(connections)
	}
	return stats
}

// sendEvent writes an event to this connection only
func (c *Connection) sendEvent(event *events.RoomEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	c.Manager.mu.RLock()
	defer c.Manager.mu.RUnlock()

	// Send is closed once the connection is unregistered
	if !c.Manager.roomConnections[c.RoomID][c] {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, dropping reply")
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
