package store

import (
	"log"
	"testing"
)

// newTestStore opens a Store against a fresh temp-file SQLite database.
// A temp file (rather than ":memory:") matches production's WAL-mode,
// single-connection behavior; ":memory:" is shared per-connection and
// would mask bugs a real file wouldn't.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := t.TempDir() + "/daymon-test.db"
	s, err := Open(dbPath, log.Default())
	if err != nil {
		t.Fatalf("store: open test db: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("store: close test db: %v", err)
		}
	})
	return s
}
