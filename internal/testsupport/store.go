package testsupport

import (
	"path/filepath"
	"testing"

	"filerelay/internal/queue"
)

// QueuePath returns a fresh SQLite queue location inside a temp directory.
func QueuePath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "queue.db")
}

// MustOpenStore opens a queue.Store on a fresh database and registers cleanup.
func MustOpenStore(t testing.TB) *queue.Store {
	t.Helper()
	return MustOpenStoreAt(t, QueuePath(t))
}

// MustOpenStoreAt opens the queue.Store at path and registers cleanup.
func MustOpenStoreAt(t testing.TB, path string) *queue.Store {
	t.Helper()

	store, err := queue.Open(path)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
