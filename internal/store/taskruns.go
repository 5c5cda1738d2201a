package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateTaskRun starts a new run for task in status=running.
func (s *Store) CreateTaskRun(taskID int64) (*TaskRun, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO task_runs (task_id, started_at, status, result)
		VALUES (?, ?, ?, '')`, taskID, formatISO(now), RunRunning)
	if err != nil {
		return nil, fmt.Errorf("store: create task run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTaskRun(id)
}

// GetTaskRun fetches a TaskRun by id.
func (s *Store) GetTaskRun(id int64) (*TaskRun, error) {
	row := s.db.QueryRow(runSelectCols+` FROM task_runs WHERE id = ?`, id)
	return scanRunGeneric(row)
}

// LatestTaskRun returns the most recently started run for a task, or nil
// if none exists.
func (s *Store) LatestTaskRun(taskID int64) (*TaskRun, error) {
	row := s.db.QueryRow(runSelectCols+` FROM task_runs WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID)
	r, err := scanRunGeneric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// IsTaskRunning reports whether the latest TaskRun for task is still
// status=running, which is the cross-process execution lock.
func (s *Store) IsTaskRunning(taskID int64) (bool, error) {
	r, err := s.LatestTaskRun(taskID)
	if err != nil {
		return false, err
	}
	return r != nil && r.Status == RunRunning, nil
}

// ListRunningTaskRuns returns every TaskRun currently status=running.
func (s *Store) ListRunningTaskRuns() ([]TaskRun, error) {
	rows, err := s.db.Query(runSelectCols+` FROM task_runs WHERE status = ? ORDER BY id`, RunRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskRun
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListTaskRuns returns up to limit most-recent TaskRuns across all tasks.
func (s *Store) ListTaskRuns(limit int) ([]TaskRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(runSelectCols+` FROM task_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskRun
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRunProgress writes a throttled progress update.
func (s *Store) UpdateRunProgress(runID int64, fraction *float64, message string) error {
	_, err := s.db.Exec(`UPDATE task_runs SET progress = ?, progress_message = ? WHERE id = ?`,
		fraction, message, runID)
	return err
}

// UpdateRunSessionID persists the session id captured from the executor
// onto the run row.
func (s *Store) UpdateRunSessionID(runID int64, sessionID string) error {
	_, err := s.db.Exec(`UPDATE task_runs SET session_id = ? WHERE id = ?`, sessionID, runID)
	return err
}

// CompleteTaskRun finalizes a run: sets finished_at, status (failed iff
// errorMessage is non-empty), computes duration_ms, and updates the
// parent task's last_run/last_result/error_count.
func (s *Store) CompleteTaskRun(runID int64, result string, resultFile *string, errorMessage *string) error {
	run, err := s.GetTaskRun(runID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	status := RunCompleted
	if errorMessage != nil && *errorMessage != "" {
		status = RunFailed
	}
	durationMs := now.Sub(run.StartedAt).Milliseconds()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		UPDATE task_runs SET finished_at = ?, status = ?, result = ?, result_file = ?, error_message = ?, duration_ms = ?
		WHERE id = ?`, formatISO(now), status, result, resultFile, errorMessage, durationMs, runID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: complete task run: %w", err)
	}

	if status == RunCompleted {
		_, err = tx.Exec(`UPDATE tasks SET last_run = ?, last_result = ?, error_count = 0, updated_at = ? WHERE id = ?`,
			formatISO(now), result, formatISO(now), run.TaskID)
	} else {
		_, err = tx.Exec(`UPDATE tasks SET last_run = ?, last_result = ?, error_count = error_count + 1, updated_at = ? WHERE id = ?`,
			formatISO(now), result, formatISO(now), run.TaskID)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: complete task run: updating task: %w", err)
	}
	return tx.Commit()
}

// IncrementTaskRunCount bumps task.run_count on a successful run and
// transitions the task to completed if max_runs is now reached.
func (s *Store) IncrementTaskRunCount(taskID int64) error {
	task, err := s.GetTask(taskID)
	if err != nil {
		return err
	}
	newCount := task.RunCount + 1
	status := task.Status
	if task.MaxRuns != nil && newCount >= *task.MaxRuns {
		status = TaskCompleted
	}
	_, err = s.db.Exec(`UPDATE tasks SET run_count = ?, status = ?, updated_at = ? WHERE id = ?`,
		newCount, status, nowISO(), taskID)
	return err
}

const runSelectCols = `SELECT
	id, task_id, started_at, finished_at, status, result, result_file,
	error_message, duration_ms, session_id, progress, progress_message`

func scanRunGeneric(row rowScanner) (*TaskRun, error) {
	var r TaskRun
	var startedAt string
	var finishedAt, resultFile, errorMessage, sessionID, progressMessage sql.NullString
	var durationMs sql.NullInt64
	var progress sql.NullFloat64

	err := row.Scan(
		&r.ID, &r.TaskID, &startedAt, &finishedAt, &r.Status, &r.Result, &resultFile,
		&errorMessage, &durationMs, &sessionID, &progress, &progressMessage,
	)
	if err != nil {
		return nil, err
	}
	r.StartedAt, err = parseISO(startedAt)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		ts, perr := parseISO(finishedAt.String)
		if perr != nil {
			return nil, perr
		}
		r.FinishedAt = &ts
	}
	if resultFile.Valid {
		r.ResultFile = &resultFile.String
	}
	if errorMessage.Valid {
		r.ErrorMessage = &errorMessage.String
	}
	if durationMs.Valid {
		v := durationMs.Int64
		r.DurationMs = &v
	}
	if sessionID.Valid {
		r.SessionID = &sessionID.String
	}
	if progress.Valid {
		v := progress.Float64
		r.Progress = &v
	}
	if progressMessage.Valid {
		r.ProgressMessage = &progressMessage.String
	}
	return &r, nil
}

func scanRunRow(rows *sql.Rows) (*TaskRun, error) {
	return scanRunGeneric(rows)
}
