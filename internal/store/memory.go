package store

import "fmt"

// maxObservationContentLen bounds how much of a TaskRun's result is
// retained in a memory Observation.
const maxObservationContentLen = 2000

// maxTaskObservations is how many observations a task's memory entity
// keeps; older ones are pruned on every write-back.
const maxTaskObservations = 10

// EnsureTaskMemoryEntity returns the Task's memory Entity, lazily
// creating one (and persisting its id on the task) the first time a Task
// needs one.
func (s *Store) EnsureTaskMemoryEntity(taskID int64) (*Entity, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("store: ensure task memory entity: %w", err)
	}
	if task.MemoryEntityID != nil {
		return s.GetEntity(*task.MemoryEntityID)
	}
	entity, err := s.CreateEntity(fmt.Sprintf("Task: %s", task.Name), "task_result", "task")
	if err != nil {
		return nil, fmt.Errorf("store: create task memory entity: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE tasks SET memory_entity_id = ? WHERE id = ?`, entity.ID, taskID); err != nil {
		return nil, fmt.Errorf("store: link task memory entity: %w", err)
	}
	return entity, nil
}

// RecordTaskOutcome appends a run's outcome to its Task's memory entity
// as a single marked, truncated Observation, then prunes to the most
// recent maxTaskObservations. Called from the Task Runner's finalization
// step, after CompleteTaskRun.
func (s *Store) RecordTaskOutcome(taskID int64, success bool, result string) error {
	entity, err := s.EnsureTaskMemoryEntity(taskID)
	if err != nil {
		return err
	}
	marker := "[FAILED]"
	if success {
		marker = "[SUCCESS]"
	}
	content := result
	if len(content) > maxObservationContentLen {
		content = content[:maxObservationContentLen] + "\n[...truncated]"
	}
	if _, err := s.AddObservation(entity.ID, marker+" "+content, "task_run"); err != nil {
		return fmt.Errorf("store: record task outcome: %w", err)
	}
	return s.PruneObservations(entity.ID, maxTaskObservations)
}
