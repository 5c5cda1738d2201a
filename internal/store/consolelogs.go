package store

import (
	"fmt"
	"time"
)

// InsertConsoleLogs bulk-inserts a batch of console log entries for a run
// in one transaction. Callers are responsible for assigning monotonically
// increasing seq values.
func (s *Store) InsertConsoleLogs(logs []ConsoleLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO console_logs (run_id, seq, entry_type, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, l := range logs {
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.Exec(l.RunID, l.Seq, l.EntryType, l.Content, formatISO(createdAt)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: insert console logs: %w", err)
		}
	}
	return tx.Commit()
}

// ListConsoleLogs returns console log rows for a run with seq in
// (sinceSeq, +inf), ordered by seq ascending.
func (s *Store) ListConsoleLogs(runID int64, sinceSeq int64) ([]ConsoleLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, seq, entry_type, content, created_at
		FROM console_logs WHERE run_id = ? AND seq > ? ORDER BY seq`, runID, sinceSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConsoleLog
	for rows.Next() {
		var l ConsoleLog
		var createdAt string
		if err := rows.Scan(&l.ID, &l.RunID, &l.Seq, &l.EntryType, &l.Content, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt, err = parseISO(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
