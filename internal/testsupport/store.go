package testsupport

import (
	"context"
	"testing"

	"vid2doc/internal/config"
	"vid2doc/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewVideoJob enqueues a URL-sourced video job for tests.
func NewVideoJob(t testing.TB, store *queue.Store, sourceURL string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), queue.NewJobParams{
		Kind:      queue.KindVideo,
		SourceURL: sourceURL,
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
