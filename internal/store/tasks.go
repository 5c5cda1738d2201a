package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateTask inserts a new Task. Trigger invariants (cron needs a cron
// expression, once needs scheduled_at, manual needs neither) are enforced
// here.
func (s *Store) CreateTask(t Task) (*Task, error) {
	if err := validateTrigger(t.TriggerType, t.CronExpression, t.ScheduledAt); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO tasks (
			name, description, prompt, executor, status, trigger_type,
			cron_expression, scheduled_at, trigger_config, error_count,
			max_runs, run_count, memory_entity_id, worker_id,
			session_continuity, session_id, timeout_minutes, nudge_mode,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Description, t.Prompt, t.Executor, statusOrDefault(t.Status), t.TriggerType,
		t.CronExpression, nullableISO(t.ScheduledAt), t.TriggerConfig,
		t.MaxRuns, t.MemoryEntityID, t.WorkerID,
		boolToInt(t.SessionContinuity), t.SessionID, t.TimeoutMinutes, t.NudgeMode,
		formatISO(now), formatISO(now))
	if err != nil {
		return nil, fmt.Errorf("store: create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTask(id)
}

func statusOrDefault(st TaskStatus) TaskStatus {
	if st == "" {
		return TaskActive
	}
	return st
}

func validateTrigger(tt TriggerType, cron *string, scheduledAt *time.Time) error {
	switch tt {
	case TriggerCron:
		if cron == nil || *cron == "" {
			return fmt.Errorf("store: cron tasks require cron_expression")
		}
		if scheduledAt != nil {
			return fmt.Errorf("store: cron tasks must not set scheduled_at")
		}
	case TriggerOnce:
		if scheduledAt == nil {
			return fmt.Errorf("store: once tasks require scheduled_at")
		}
		if cron != nil && *cron != "" {
			return fmt.Errorf("store: once tasks must not set cron_expression")
		}
	case TriggerManual:
		if cron != nil && *cron != "" {
			return fmt.Errorf("store: manual tasks must not set cron_expression")
		}
		if scheduledAt != nil {
			return fmt.Errorf("store: manual tasks must not set scheduled_at")
		}
	default:
		return fmt.Errorf("store: unknown trigger_type %q", tt)
	}
	return nil
}

// GetTask fetches a Task by id.
func (s *Store) GetTask(id int64) (*Task, error) {
	row := s.db.QueryRow(taskSelectCols+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks returns tasks, optionally filtered by status.
func (s *Store) ListTasks(status *TaskStatus) ([]Task, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.db.Query(taskSelectCols+` FROM tasks WHERE status = ? ORDER BY id`, *status)
	} else {
		rows, err = s.db.Query(taskSelectCols + ` FROM tasks ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DueOnceTasks returns active once-trigger tasks whose scheduled_at has
// passed.
func (s *Store) DueOnceTasks(now time.Time) ([]Task, error) {
	rows, err := s.db.Query(taskSelectCols+`
		FROM tasks WHERE trigger_type = ? AND status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at`, TriggerOnce, TaskActive, formatISO(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ActiveCronTasks returns active cron-trigger tasks.
func (s *Store) ActiveCronTasks() ([]Task, error) {
	rows, err := s.db.Query(taskSelectCols+`
		FROM tasks WHERE trigger_type = ? AND status = ? ORDER BY id`, TriggerCron, TaskActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTask applies a partial update and bumps updated_at.
func (s *Store) UpdateTask(id int64, u TaskUpdate) (*Task, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{nowISO()}

	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Prompt != nil {
		sets = append(sets, "prompt = ?")
		args = append(args, *u.Prompt)
	}
	if u.Executor != nil {
		sets = append(sets, "executor = ?")
		args = append(args, *u.Executor)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.CronExpression != nil {
		sets = append(sets, "cron_expression = ?")
		args = append(args, *u.CronExpression)
	}
	if u.ClearScheduledAt {
		sets = append(sets, "scheduled_at = NULL")
	} else if u.ScheduledAt != nil {
		sets = append(sets, "scheduled_at = ?")
		args = append(args, formatISO(*u.ScheduledAt))
	}
	if u.TriggerConfig != nil {
		sets = append(sets, "trigger_config = ?")
		args = append(args, *u.TriggerConfig)
	}
	if u.MaxRuns != nil {
		sets = append(sets, "max_runs = ?")
		args = append(args, *u.MaxRuns)
	}
	if u.ClearWorkerID {
		sets = append(sets, "worker_id = NULL")
	} else if u.WorkerID != nil {
		sets = append(sets, "worker_id = ?")
		args = append(args, *u.WorkerID)
	}
	if u.SessionContinuity != nil {
		sets = append(sets, "session_continuity = ?")
		args = append(args, boolToInt(*u.SessionContinuity))
	}
	if u.ClearSessionID {
		sets = append(sets, "session_id = NULL")
	} else if u.SessionID != nil {
		sets = append(sets, "session_id = ?")
		args = append(args, *u.SessionID)
	}
	if u.TimeoutMinutes != nil {
		sets = append(sets, "timeout_minutes = ?")
		args = append(args, *u.TimeoutMinutes)
	}
	if u.NudgeMode != nil {
		sets = append(sets, "nudge_mode = ?")
		args = append(args, *u.NudgeMode)
	}

	args = append(args, id)
	query := "UPDATE tasks SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	if _, err := s.db.Exec(query, args...); err != nil {
		return nil, fmt.Errorf("store: update task: %w", err)
	}
	return s.GetTask(id)
}

// DeleteTask deletes a Task; TaskRuns and ConsoleLogs cascade.
func (s *Store) DeleteTask(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// PauseTask sets a Task's status to paused, suppressing all triggering.
func (s *Store) PauseTask(id int64) error {
	paused := TaskPaused
	_, err := s.UpdateTask(id, TaskUpdate{Status: &paused})
	return err
}

// ResumeTask sets a Task's status back to active.
func (s *Store) ResumeTask(id int64) error {
	active := TaskActive
	_, err := s.UpdateTask(id, TaskUpdate{Status: &active})
	return err
}

// UpdateTaskSessionID persists the captured session_id on a Task (used when
// session_continuity is enabled).
func (s *Store) UpdateTaskSessionID(id int64, sessionID string) error {
	_, err := s.db.Exec(`UPDATE tasks SET session_id = ?, updated_at = ? WHERE id = ?`, sessionID, nowISO(), id)
	return err
}

// CountRunsWithSessionID counts prior TaskRuns for task that share sessionID.
func (s *Store) CountRunsWithSessionID(taskID int64, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM task_runs WHERE task_id = ? AND session_id = ?`, taskID, sessionID).Scan(&n)
	return n, err
}

const taskSelectCols = `SELECT
	id, name, description, prompt, executor, status, trigger_type,
	cron_expression, scheduled_at, trigger_config, last_run, last_result,
	error_count, max_runs, run_count, memory_entity_id, worker_id,
	session_continuity, session_id, timeout_minutes, nudge_mode, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row *sql.Row) (*Task, error) {
	return scanTaskGeneric(row)
}

func scanTaskRow(rows *sql.Rows) (*Task, error) {
	return scanTaskGeneric(rows)
}

func scanTaskGeneric(row rowScanner) (*Task, error) {
	var t Task
	var cronExpr, triggerConfig, lastResult, sessionID sql.NullString
	var scheduledAt, lastRun sql.NullString
	var maxRuns, memoryEntityID, workerID, timeoutMinutes sql.NullInt64
	var sessionContinuity int
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Prompt, &t.Executor, &t.Status, &t.TriggerType,
		&cronExpr, &scheduledAt, &triggerConfig, &lastRun, &lastResult,
		&t.ErrorCount, &maxRuns, &t.RunCount, &memoryEntityID, &workerID,
		&sessionContinuity, &sessionID, &timeoutMinutes, &t.NudgeMode, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan task: %w", err)
	}

	if cronExpr.Valid {
		t.CronExpression = &cronExpr.String
	}
	if scheduledAt.Valid {
		ts, perr := parseISO(scheduledAt.String)
		if perr != nil {
			return nil, perr
		}
		t.ScheduledAt = &ts
	}
	if triggerConfig.Valid {
		t.TriggerConfig = &triggerConfig.String
	}
	if lastRun.Valid {
		ts, perr := parseISO(lastRun.String)
		if perr != nil {
			return nil, perr
		}
		t.LastRun = &ts
	}
	if lastResult.Valid {
		t.LastResult = &lastResult.String
	}
	if maxRuns.Valid {
		v := int(maxRuns.Int64)
		t.MaxRuns = &v
	}
	if memoryEntityID.Valid {
		v := memoryEntityID.Int64
		t.MemoryEntityID = &v
	}
	if workerID.Valid {
		v := workerID.Int64
		t.WorkerID = &v
	}
	if sessionID.Valid {
		t.SessionID = &sessionID.String
	}
	if timeoutMinutes.Valid {
		v := int(timeoutMinutes.Int64)
		t.TimeoutMinutes = &v
	}
	t.SessionContinuity = sessionContinuity != 0
	t.CreatedAt, err = parseISO(createdAt)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt, err = parseISO(updatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
