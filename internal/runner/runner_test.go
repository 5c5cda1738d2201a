package runner

import (
	"log"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daymon-dev/daymon/internal/executor"
	"github.com/daymon-dev/daymon/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/daymon-test.db", log.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionForRun_NoSessionContinuityReturnsEmpty(t *testing.T) {
	task := &store.Task{SessionContinuity: false}
	r := &Runner{}
	assert.Empty(t, r.sessionForRun(task))
}

func TestSessionForRun_NoPriorSessionReturnsEmpty(t *testing.T) {
	task := &store.Task{SessionContinuity: true}
	r := &Runner{}
	assert.Empty(t, r.sessionForRun(task))
}

func TestSessionForRun_ResumesUnderThreshold(t *testing.T) {
	st := newTestStore(t)
	r := New(st, nil)

	sessionID := "sess-abc"
	cron := "* * * * *"
	created, err := st.CreateTask(store.Task{
		Name: "demo", Prompt: "p", TriggerType: store.TriggerCron, CronExpression: &cron,
		SessionContinuity: true, SessionID: &sessionID,
	})
	require.NoError(t, err)

	assert.Equal(t, sessionID, r.sessionForRun(created))
}

func TestSessionForRun_RotatesAtThreshold(t *testing.T) {
	st := newTestStore(t)
	r := New(st, nil)

	sessionID := "sess-abc"
	cron := "* * * * *"
	task, err := st.CreateTask(store.Task{
		Name: "demo", Prompt: "p", TriggerType: store.TriggerCron, CronExpression: &cron,
		SessionContinuity: true, SessionID: &sessionID,
	})
	require.NoError(t, err)

	for i := 0; i < sessionRotationThreshold; i++ {
		run, err := st.CreateTaskRun(task.ID)
		require.NoError(t, err)
		require.NoError(t, st.UpdateRunSessionID(run.ID, sessionID))
	}

	assert.Empty(t, r.sessionForRun(task))
}

func TestComposePrompt_NoMemoryReturnsBarePrompt(t *testing.T) {
	st := newTestStore(t)
	r := New(st, nil)
	task := &store.Task{Name: "demo", Prompt: "do the thing"}

	got, err := r.composePrompt(task, true)
	require.NoError(t, err)
	assert.Equal(t, "do the thing", got)
}

func TestComposePrompt_IncludesOwnHistoryWhenFullMemory(t *testing.T) {
	st := newTestStore(t)
	r := New(st, nil)

	entity, err := st.CreateEntity("Task: demo", "task_result", "task")
	require.NoError(t, err)
	_, err = st.AddObservation(entity.ID, "[SUCCESS] did the thing", "task_run")
	require.NoError(t, err)

	task := &store.Task{Name: "demo", Prompt: "do the thing", MemoryEntityID: &entity.ID}

	got, err := r.composePrompt(task, true)
	require.NoError(t, err)
	assert.Contains(t, got, "did the thing")
	assert.True(t, strings.HasSuffix(got, "do the thing"))
}

func TestComposePrompt_CrossTaskOnlySkipsOwnHistory(t *testing.T) {
	st := newTestStore(t)
	r := New(st, nil)

	entity, err := st.CreateEntity("Task: demo", "task_result", "task")
	require.NoError(t, err)
	_, err = st.AddObservation(entity.ID, "[SUCCESS] own history marker", "task_run")
	require.NoError(t, err)

	task := &store.Task{Name: "demo", Prompt: "do the thing", MemoryEntityID: &entity.ID}

	got, err := r.composePrompt(task, false)
	require.NoError(t, err)
	assert.NotContains(t, got, "own history marker")
}

func TestSanitizeFilenameComponent_StripsUnsafeCharsAndTruncates(t *testing.T) {
	got := sanitizeFilenameComponent("Check/Inbox: urgent!! mail", 12)
	assert.LessOrEqual(t, len(got), 12)
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, ":")
}

func TestSanitizeFilenameComponent_EmptyFallsBackToTask(t *testing.T) {
	assert.Equal(t, "task", sanitizeFilenameComponent("!!!", 50))
}

func TestWriteResultFile_WritesMarkdownWithStatus(t *testing.T) {
	dir := t.TempDir()
	result := &executor.Result{Stdout: "all good", ExitCode: 0}

	path, err := writeResultFile(dir, "My Task", result, true)
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(path, dir))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "# Task: My Task"))
	assert.Contains(t, string(content), "**Status:** Success")
}

func TestWriteResultFile_EmptyDirSkipsWrite(t *testing.T) {
	result := &executor.Result{Stdout: "x", ExitCode: 0}
	path, err := writeResultFile("", "My Task", result, true)
	require.NoError(t, err)
	assert.Empty(t, path)
}
