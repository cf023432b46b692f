package questionbank

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// WatcherConfig controls catalog hot reload from postgres
type WatcherConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel the seed tool notifies on
	FallbackInterval time.Duration // Reload even without a notification
	PingInterval     time.Duration
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		NotifyChannel:    "questions_changed",
		FallbackInterval: 5 * time.Minute,
		PingInterval:     90 * time.Second,
	}
}

// Loader produces a fresh catalog. *PostgresSource satisfies it.
type Loader interface {
	Load(ctx context.Context) (Catalog, error)
}

// CatalogWatcher reloads the bank whenever the questions table changes.
// A failed load keeps the previous catalog in service.
type CatalogWatcher struct {
	loader Loader
	bank   *Bank
	cfg    WatcherConfig

	notify <-chan *pq.Notification
	ping   func() error
	close  func() error
}

func NewCatalogWatcher(loader Loader, bank *Bank, cfg WatcherConfig) (*CatalogWatcher, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("catalog listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for catalog changes")

	return newCatalogWatcher(loader, bank, cfg, l.Notify, l.Ping, l.Close), nil
}

func newCatalogWatcher(loader Loader, bank *Bank, cfg WatcherConfig, notify <-chan *pq.Notification, ping, closeFn func() error) *CatalogWatcher {
	if ping == nil {
		ping = func() error { return nil }
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &CatalogWatcher{
		loader: loader,
		bank:   bank,
		cfg:    cfg,
		notify: notify,
		ping:   ping,
		close:  closeFn,
	}
}

// Start blocks until ctx is done
func (w *CatalogWatcher) Start(ctx context.Context) error {
	log.Info().
		Str("channel", w.cfg.NotifyChannel).
		Dur("fallback_interval", w.cfg.FallbackInterval).
		Msg("catalog watcher started")

	pingTicker := time.NewTicker(w.cfg.PingInterval)
	fallbackTicker := time.NewTicker(w.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("catalog watcher shutting down")
			return w.close()
		case note := <-w.notify:
			if note == nil {
				// connection was re-established, changes may have been missed
				log.Warn().Msg("catalog listener reconnected")
			}
			if err := w.Reload(ctx); err != nil {
				log.Error().Err(err).Msg("failed to reload catalog")
			}
		case <-fallbackTicker.C:
			if err := w.Reload(ctx); err != nil {
				log.Error().Err(err).Msg("failed to reload catalog")
			}
		case <-pingTicker.C:
			if err := w.ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping catalog listener")
			}
		}
	}
}

// Reload loads a new catalog and swaps it into the bank
func (w *CatalogWatcher) Reload(ctx context.Context) error {
	catalog, err := w.loader.Load(ctx)
	if err != nil {
		return err
	}
	w.bank.Replace(catalog)
	log.Info().Int("questions", catalog.Count()).Msg("question catalog reloaded")
	return nil
}
