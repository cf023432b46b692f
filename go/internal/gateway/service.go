package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Relay carries room events through JetStream instead of straight to the
// local connection manager
type Relay struct {
	Publisher *JetStreamPublisher
	Consumer  *EventConsumer
}

// Service is the room gateway: WebSocket connections, state API and admin RPC
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	adminService      *AdminService
	router            *CommandRouter
	relay             *Relay
}

// NewService wires the gateway around a game session. relay may be nil.
func NewService(cm *ConnectionManager, game GameController, subjects SubjectLister, relay *Relay) *Service {
	router := NewCommandRouter(game, cm)
	cm.Handle(router)

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(game, subjects),
		adminService:      NewAdminService(game, cm),
		router:            router,
		relay:             relay,
	}
}

// Start runs the broadcast loop and the relay until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("relay", s.relay != nil).Msg("starting room gateway service")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.connectionManager.Start(ctx)
		return nil
	})

	if s.relay != nil {
		g.Go(func() error {
			return s.relay.Publisher.Run(ctx)
		})
		g.Go(func() error {
			return s.relay.Consumer.Start(ctx)
		})
	}

	err := g.Wait()
	log.Info().Msg("room gateway service shutting down")
	s.Stop()
	return err
}

// Stop releases the relay connections
func (s *Service) Stop() {
	if s.relay == nil {
		return
	}
	if err := s.relay.Consumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	if err := s.relay.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
}

// RegisterRoutes registers the WebSocket, state and admin routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)

	adminPath, adminHandler := NewAdminServiceHandler(s.adminService)
	mux.Handle(adminPath, adminHandler)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	log.Info().Msg("room gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
