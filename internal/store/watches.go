package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateWatch inserts a new filesystem watch.
func (s *Store) CreateWatch(w Watch) (*Watch, error) {
	status := w.Status
	if status == "" {
		status = WatchActive
	}
	res, err := s.db.Exec(`
		INSERT INTO watches (path, description, action_prompt, status, trigger_count)
		VALUES (?, ?, ?, ?, 0)`, w.Path, w.Description, w.ActionPrompt, status)
	if err != nil {
		return nil, fmt.Errorf("store: create watch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetWatch(id)
}

// GetWatch fetches a Watch by id.
func (s *Store) GetWatch(id int64) (*Watch, error) {
	row := s.db.QueryRow(watchSelectCols+` FROM watches WHERE id = ?`, id)
	return scanWatch(row)
}

// ListWatches returns all watches, optionally filtered by status.
func (s *Store) ListWatches(status *WatchStatus) ([]Watch, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.db.Query(watchSelectCols+` FROM watches WHERE status = ? ORDER BY id`, *status)
	} else {
		rows, err = s.db.Query(watchSelectCols + ` FROM watches ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Watch
	for rows.Next() {
		w, err := scanWatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// WatchUpdate carries a partial update to a Watch; nil fields are left
// untouched.
type WatchUpdate struct {
	Path         *string
	Description  *string
	ActionPrompt *string
	Status       *WatchStatus
}

// UpdateWatch applies a partial update.
func (s *Store) UpdateWatch(id int64, u WatchUpdate) (*Watch, error) {
	sets := []string{}
	args := []interface{}{}
	if u.Path != nil {
		sets = append(sets, "path = ?")
		args = append(args, *u.Path)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.ActionPrompt != nil {
		sets = append(sets, "action_prompt = ?")
		args = append(args, *u.ActionPrompt)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if len(sets) == 0 {
		return s.GetWatch(id)
	}
	args = append(args, id)
	query := "UPDATE watches SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	if _, err := s.db.Exec(query, args...); err != nil {
		return nil, fmt.Errorf("store: update watch: %w", err)
	}
	return s.GetWatch(id)
}

// RecordWatchTrigger bumps trigger_count and sets last_triggered,
// best-effort.
func (s *Store) RecordWatchTrigger(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE watches SET trigger_count = trigger_count + 1, last_triggered = ? WHERE id = ?`,
		formatISO(at), id)
	return err
}

// DeleteWatch removes a Watch.
func (s *Store) DeleteWatch(id int64) error {
	_, err := s.db.Exec(`DELETE FROM watches WHERE id = ?`, id)
	return err
}

const watchSelectCols = `SELECT id, path, description, action_prompt, status, last_triggered, trigger_count`

func scanWatch(row *sql.Row) (*Watch, error) {
	return scanWatchGeneric(row)
}

func scanWatchRow(rows *sql.Rows) (*Watch, error) {
	return scanWatchGeneric(rows)
}

func scanWatchGeneric(row rowScanner) (*Watch, error) {
	var w Watch
	var lastTriggered sql.NullString
	if err := row.Scan(&w.ID, &w.Path, &w.Description, &w.ActionPrompt, &w.Status, &lastTriggered, &w.TriggerCount); err != nil {
		return nil, err
	}
	if lastTriggered.Valid {
		ts, err := parseISO(lastTriggered.String)
		if err != nil {
			return nil, err
		}
		w.LastTriggered = &ts
	}
	return &w, nil
}
