// Package store is the only component that touches persistent state: an
// embedded SQL database shared across processes, with versioned
// migrations, typed CRUD, FTS+vector hybrid search, and the task/memory
// helpers the Task Runner depends on.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the embedded SQL handle. Multiple processes may open the
// same file concurrently (WAL mode, 5s busy-timeout). Most multi-write
// operations run inside one transaction; EnsureTaskMemoryEntity (entity
// insert, then task link), RecordTaskOutcome (observation insert, then
// prune) and the orphan-run sweep (one update per run) issue their writes
// as separate statements.
type Store struct {
	db  *sql.DB
	log *log.Logger
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL mode and foreign keys, applies any outstanding migrations, and runs
// the startup orphan-run sweep.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// modernc.org/sqlite serializes access internally; a single shared
	// connection avoids SQLITE_BUSY churn between our own goroutines while
	// WAL mode still lets other processes read/write concurrently.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	if err := s.sweepOrphanRuns(); err != nil {
		logger.Printf("store: orphan sweep failed (non-fatal): %v", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies outstanding migrations. On a brand new database (no
// schema_version table yet) all migrations run in a single transaction;
// otherwise each migration whose version exceeds MAX(version) runs in its
// own transaction.
func (s *Store) migrate() error {
	var hasVersionTable bool
	row := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`)
	var name string
	if err := row.Scan(&name); err == nil {
		hasVersionTable = true
	} else if err != sql.ErrNoRows {
		return err
	}

	if !hasVersionTable {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if _, err := tx.Exec(m.SQL); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Label, err)
			}
			if _, err := tx.Exec(`INSERT OR IGNORE INTO schema_version(version, applied_at) VALUES (?, ?)`,
				m.Version, nowISO()); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): recording version: %w", m.Version, m.Label, err)
			}
		}
		return tx.Commit()
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Label, err)
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO schema_version(version, applied_at) VALUES (?, ?)`,
			m.Version, nowISO()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): recording version: %w", m.Version, m.Label, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	return v, err
}

// sweepOrphanRuns marks any TaskRun left with status=running and no
// finished_at as failed with errorMessage="orphaned" (a crashed prior
// process).
func (s *Store) sweepOrphanRuns() error {
	now := time.Now().UTC()
	rows, err := s.db.Query(`SELECT id, started_at FROM task_runs WHERE status = ? AND finished_at IS NULL`, RunRunning)
	if err != nil {
		return err
	}
	type orphan struct {
		id        int64
		startedAt time.Time
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		var startedAtStr string
		if err := rows.Scan(&o.id, &startedAtStr); err != nil {
			_ = rows.Close()
			return err
		}
		o.startedAt, _ = parseISO(startedAtStr)
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for _, o := range orphans {
		durationMs := now.Sub(o.startedAt).Milliseconds()
		errMsg := "orphaned"
		_, err := s.db.Exec(`
			UPDATE task_runs SET status = ?, finished_at = ?, error_message = ?, duration_ms = ?
			WHERE id = ?`, RunFailed, nowISO(), errMsg, durationMs, o.id)
		if err != nil {
			return err
		}
	}
	return nil
}

// Maintain re-runs the orphan-run sweep and prunes old runs; the Scheduler
// calls this once per sync cycle.
func (s *Store) Maintain() error {
	if err := s.sweepOrphanRuns(); err != nil {
		return fmt.Errorf("store: maintain: sweep orphan runs: %w", err)
	}
	if err := s.PruneOldRuns(); err != nil {
		return fmt.Errorf("store: maintain: prune old runs: %w", err)
	}
	return nil
}

// PruneOldRuns deletes TaskRuns (and cascading ConsoleLogs) older than the
// retention window, read from the task_run_retention_days Setting (default
// 30 days).
func (s *Store) PruneOldRuns() error {
	days := 30
	if v, err := s.GetSetting("task_run_retention_days"); err == nil && v != nil {
		if parsed, convErr := parseIntSetting(v.Value); convErr == nil {
			days = parsed
		}
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	_, err := s.db.Exec(`DELETE FROM task_runs WHERE finished_at IS NOT NULL AND finished_at < ?`, formatISO(cutoff))
	return err
}

func parseIntSetting(s string) (int, error) {
	var v int
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
