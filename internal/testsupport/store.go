package testsupport

import (
	"testing"

	"docflow/internal/config"
	"docflow/internal/journal"
	"docflow/internal/logging"
)

// MustOpenJournal opens the journal for cfg and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := journal.OpenConfig(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("journal.OpenConfig: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
