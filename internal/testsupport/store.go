package testsupport

import (
	"context"
	"testing"

	"shipyard/internal/config"
	"shipyard/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob records a pending signing job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, fileName, sourcePath string) *jobs.Job {
	t.Helper()

	job, err := store.Add(context.Background(), fileName, sourcePath)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return job
}
