package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/booxclash/booxclash/go/internal/config"
	"github.com/booxclash/booxclash/go/internal/dbconfig"
	"github.com/booxclash/booxclash/go/internal/gateway"
	"github.com/booxclash/booxclash/go/internal/knockout/questionbank"
	"github.com/booxclash/booxclash/go/internal/knockout/session"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := config.NewConfigFromEnv()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("knockout gateway failed")
	}
	log.Info().Msg("knockout gateway shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	catalog, source, err := loadCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	bank := questionbank.NewBank(catalog, nil)

	var watcher *questionbank.CatalogWatcher
	if source != nil {
		defer source.Close()
		watchCfg := questionbank.DefaultWatcherConfig()
		watchCfg.DatabaseURL = source.DSN
		watcher, err = questionbank.NewCatalogWatcher(source, bank, watchCfg)
		if err != nil {
			return fmt.Errorf("failed to watch question catalog: %w", err)
		}
	}

	clk := clockwork.NewRealClock()
	cmCfg := gateway.DefaultConnectionConfig()
	cmCfg.MaxPlayers = cfg.MaxPlayers
	cmCfg.Clock = clk
	cm := gateway.NewConnectionManager(cmCfg)

	// Room events go straight to local sockets unless a NATS relay is configured
	var emitter session.Emitter = cm
	var relay *gateway.Relay
	if cfg.NATSURL != "" {
		relay, err = setupRelay(ctx, cfg.NATSURL, cfg.InstanceID, cm)
		if err != nil {
			return err
		}
		emitter = relay.Publisher
	}

	opts := session.DefaultOptions()
	opts.Timing = cfg.Timing
	if cfg.Seed != 0 {
		opts.NewRand = session.SeededRand(cfg.Seed)
	}
	game := session.NewGameSession(session.NewRegistry(), bank, emitter, clk, opts)
	defer game.Close()

	svc := gateway.NewService(cm, game, bank, relay)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().
		Str("port", cfg.Port).
		Str("questions_source", cfg.QuestionsSource).
		Int("questions", catalog.Count()).
		Bool("relay", relay != nil).
		Msg("starting knockout gateway")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Start(ctx)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Start(ctx)
		})
	}
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		return nil
	})

	return g.Wait()
}

// postgresCatalog keeps the connection open for hot reloads
type postgresCatalog struct {
	*questionbank.PostgresSource
	DSN   string
	Close func() error
}

func loadCatalog(ctx context.Context, cfg config.Config) (questionbank.Catalog, *postgresCatalog, error) {
	switch cfg.QuestionsSource {
	case config.QuestionsFromFile:
		catalog, err := questionbank.LoadCatalog(cfg.QuestionsPath)
		return catalog, nil, err

	case config.QuestionsFromPostgres:
		dbCfg := dbconfig.NewConfigFromEnv()
		db, err := dbCfg.Open(ctx)
		if err != nil {
			return nil, nil, err
		}

		source := questionbank.NewPostgresSource(db)
		catalog, err := source.Load(ctx)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return catalog, &postgresCatalog{PostgresSource: source, DSN: dbCfg.DSN(), Close: db.Close}, nil

	default:
		return nil, nil, fmt.Errorf("unknown QUESTIONS_SOURCE %q", cfg.QuestionsSource)
	}
}

func setupRelay(ctx context.Context, natsURL, instanceID string, cm *gateway.ConnectionManager) (*gateway.Relay, error) {
	pubCfg := gateway.DefaultJetStreamConfig()
	pubCfg.URL = natsURL
	publisher, err := gateway.NewJetStreamPublisher(ctx, pubCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	consumerCfg := gateway.DefaultJetStreamConsumerConfig()
	consumerCfg.URL = natsURL
	consumerCfg.InstanceID = instanceID
	consumer, err := gateway.NewEventConsumer(ctx, cm, consumerCfg)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &gateway.Relay{Publisher: publisher, Consumer: consumer}, nil
}
