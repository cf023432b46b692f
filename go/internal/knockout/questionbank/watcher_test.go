package questionbank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/booxclash/booxclash/go/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	catalog Catalog
	err     error
	calls   chan struct{}
}

func (s *stubLoader) Load(ctx context.Context) (Catalog, error) {
	defer func() { s.calls <- struct{}{} }()
	return s.catalog, s.err
}

func singleQuestion(subject, prompt string) Catalog {
	c := make(Catalog)
	c.add(subject, "easy", models.Question{Prompt: prompt, Options: []string{"a", "b"}, CorrectOption: "a"})
	return c
}

func quietConfig() WatcherConfig {
	cfg := DefaultWatcherConfig()
	cfg.FallbackInterval = time.Hour
	cfg.PingInterval = time.Hour
	return cfg
}

func TestReloadKeepsCatalogOnError(t *testing.T) {
	bank := NewBank(singleQuestion("math", "old"), nil)
	loader := &stubLoader{err: errors.New("db down"), calls: make(chan struct{}, 1)}
	w := newCatalogWatcher(loader, bank, quietConfig(), nil, nil, nil)

	require.Error(t, w.Reload(context.Background()))
	q, err := bank.GetRandomQuestion("math", "easy")
	require.NoError(t, err)
	assert.Equal(t, "old", q.Prompt)
}

func TestWatcherReloadsOnNotification(t *testing.T) {
	bank := NewBank(singleQuestion("math", "old"), nil)
	loader := &stubLoader{catalog: singleQuestion("history", "new"), calls: make(chan struct{}, 1)}
	notify := make(chan *pq.Notification)
	closed := make(chan struct{})
	w := newCatalogWatcher(loader, bank, quietConfig(), notify, nil, func() error {
		close(closed)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	notify <- &pq.Notification{Channel: "questions_changed", Extra: "seed"}
	select {
	case <-loader.calls:
	case <-time.After(time.Second):
		t.Fatal("watcher did not reload")
	}

	require.Eventually(t, func() bool {
		_, err := bank.GetRandomQuestion("history", "easy")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	_, err := bank.GetRandomQuestion("math", "easy")
	assert.ErrorIs(t, err, ErrNotFound)

	cancel()
	require.NoError(t, <-done)
	<-closed
}
