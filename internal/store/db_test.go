package store

import (
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MigratesFreshDatabase(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestOpen_IsIdempotent(t *testing.T) {
	dbPath := t.TempDir() + "/daymon.db"
	s1, err := Open(dbPath, log.Default())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath, log.Default())
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestOpen_SeedsRetentionSetting(t *testing.T) {
	s := newTestStore(t)
	v, err := s.GetSetting("task_run_retention_days")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "30", v.Value)
}

func TestOpen_SweepsOrphanRuns(t *testing.T) {
	dbPath := t.TempDir() + "/daymon.db"
	s1, err := Open(dbPath, log.Default())
	require.NoError(t, err)

	task, err := s1.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual})
	require.NoError(t, err)
	run, err := s1.CreateTaskRun(task.ID)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath, log.Default())
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetTaskRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "orphaned", *got.ErrorMessage)
	assert.NotNil(t, got.FinishedAt)
}

func TestPruneOldRuns_RemovesOnlyFinishedRunsPastRetention(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetSetting("task_run_retention_days", "1"))

	task, err := s.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual})
	require.NoError(t, err)

	oldRun, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	require.NoError(t, s.CompleteTaskRun(oldRun.ID, "ok", nil, nil))
	old := time.Now().UTC().AddDate(0, 0, -5)
	_, err = s.db.Exec(`UPDATE task_runs SET finished_at = ? WHERE id = ?`, formatISO(old), oldRun.ID)
	require.NoError(t, err)

	recentRun, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)
	require.NoError(t, s.CompleteTaskRun(recentRun.ID, "ok", nil, nil))

	require.NoError(t, s.PruneOldRuns())

	_, err = s.GetTaskRun(oldRun.ID)
	assert.Error(t, err)

	got, err := s.GetTaskRun(recentRun.ID)
	require.NoError(t, err)
	assert.Equal(t, recentRun.ID, got.ID)
}
