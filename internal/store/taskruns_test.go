package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTaskRunning_TracksLatestRunOnly(t *testing.T) {
	s := newTestStore(t)
	task, err := s.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual})
	require.NoError(t, err)

	running, err := s.IsTaskRunning(task.ID)
	require.NoError(t, err)
	assert.False(t, running, "no runs yet")

	run, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	running, err = s.IsTaskRunning(task.ID)
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, s.CompleteTaskRun(run.ID, "done", nil, nil))
	running, err = s.IsTaskRunning(task.ID)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestCompleteTaskRun_FailureIncrementsErrorCountAndStatus(t *testing.T) {
	s := newTestStore(t)
	task, err := s.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual})
	require.NoError(t, err)

	run, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	errMsg := "boom"
	require.NoError(t, s.CompleteTaskRun(run.ID, "", nil, &errMsg))

	got, err := s.GetTaskRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.NotNil(t, got.DurationMs)

	gotTask, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotTask.ErrorCount)
}

func TestCompleteTaskRun_SuccessResetsErrorCount(t *testing.T) {
	s := newTestStore(t)
	task, err := s.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual})
	require.NoError(t, err)

	run1, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	errMsg := "boom"
	require.NoError(t, s.CompleteTaskRun(run1.ID, "", nil, &errMsg))

	run2, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	require.NoError(t, s.CompleteTaskRun(run2.ID, "ok", nil, nil))

	gotTask, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotTask.ErrorCount)
	assert.Equal(t, "ok", *gotTask.LastResult)
}

func TestIncrementTaskRunCount_CompletesTaskAtMaxRuns(t *testing.T) {
	s := newTestStore(t)
	maxRuns := 2
	task, err := s.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual, MaxRuns: &maxRuns})
	require.NoError(t, err)

	require.NoError(t, s.IncrementTaskRunCount(task.ID))
	got, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	assert.Equal(t, TaskActive, got.Status)

	require.NoError(t, s.IncrementTaskRunCount(task.ID))
	got, err = s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RunCount)
	assert.Equal(t, TaskCompleted, got.Status)
}

func TestListRunningTaskRuns(t *testing.T) {
	s := newTestStore(t)
	task, err := s.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual})
	require.NoError(t, err)

	r1, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	_, err = s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	require.NoError(t, s.CompleteTaskRun(r1.ID, "ok", nil, nil))

	running, err := s.ListRunningTaskRuns()
	require.NoError(t, err)
	require.Len(t, running, 1)
}
