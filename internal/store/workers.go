package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateWorker inserts a new Worker. If isDefault is set, any existing
// default worker is cleared first so at most one default exists.
func (s *Store) CreateWorker(w Worker) (*Worker, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	if w.IsDefault {
		if _, err := tx.Exec(`UPDATE workers SET is_default = 0 WHERE is_default = 1`); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}
	res, err := tx.Exec(`
		INSERT INTO workers (name, system_prompt, description, model, is_default, task_count)
		VALUES (?, ?, ?, ?, ?, 0)`, w.Name, w.SystemPrompt, w.Description, w.Model, boolToInt(w.IsDefault))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("store: create worker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetWorker(id)
}

// WorkerUpdate is a partial update to a Worker; nil fields are left
// unchanged.
type WorkerUpdate struct {
	SystemPrompt *string
	Description  *string
	Model        *string
	IsDefault    *bool
}

// UpdateWorker applies a partial update. Setting IsDefault clears any
// previously-default worker first so at most one default exists.
func (s *Store) UpdateWorker(id int64, u WorkerUpdate) (*Worker, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}

	sets := []string{}
	args := []interface{}{}
	if u.SystemPrompt != nil {
		sets = append(sets, "system_prompt = ?")
		args = append(args, *u.SystemPrompt)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Model != nil {
		sets = append(sets, "model = ?")
		args = append(args, *u.Model)
	}
	if u.IsDefault != nil {
		if *u.IsDefault {
			if _, err := tx.Exec(`UPDATE workers SET is_default = 0 WHERE is_default = 1`); err != nil {
				_ = tx.Rollback()
				return nil, err
			}
		}
		sets = append(sets, "is_default = ?")
		args = append(args, boolToInt(*u.IsDefault))
	}

	if len(sets) > 0 {
		args = append(args, id)
		query := "UPDATE workers SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		if _, err := tx.Exec(query, args...); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("store: update worker: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetWorker(id)
}

// GetWorker fetches a Worker by id.
func (s *Store) GetWorker(id int64) (*Worker, error) {
	row := s.db.QueryRow(workerSelectCols+` FROM workers WHERE id = ?`, id)
	return scanWorker(row)
}

// DefaultWorker returns the worker with is_default=true, or nil if none is
// set.
func (s *Store) DefaultWorker() (*Worker, error) {
	row := s.db.QueryRow(workerSelectCols + ` FROM workers WHERE is_default = 1 LIMIT 1`)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

// ListWorkers returns all workers.
func (s *Store) ListWorkers() ([]Worker, error) {
	rows, err := s.db.Query(workerSelectCols + ` FROM workers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Worker
	for rows.Next() {
		w, err := scanWorkerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// SetDefaultWorker clears any existing default and marks worker id as
// default.
func (s *Store) SetDefaultWorker(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE workers SET is_default = 0 WHERE is_default = 1`); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`UPDATE workers SET is_default = 1 WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const workerSelectCols = `SELECT id, name, system_prompt, description, model, is_default, task_count`

func scanWorker(row *sql.Row) (*Worker, error) {
	return scanWorkerGeneric(row)
}

func scanWorkerRow(rows *sql.Rows) (*Worker, error) {
	return scanWorkerGeneric(rows)
}

func scanWorkerGeneric(row rowScanner) (*Worker, error) {
	var w Worker
	var isDefault int
	if err := row.Scan(&w.ID, &w.Name, &w.SystemPrompt, &w.Description, &w.Model, &isDefault, &w.TaskCount); err != nil {
		return nil, err
	}
	w.IsDefault = isDefault != 0
	return &w, nil
}
