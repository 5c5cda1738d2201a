package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLogs_SeqOrderingAndSinceFilter(t *testing.T) {
	s := newTestStore(t)
	task, err := s.CreateTask(Task{Name: "t", Prompt: "p", TriggerType: TriggerManual})
	require.NoError(t, err)
	run, err := s.CreateTaskRun(task.ID)
	require.NoError(t, err)

	require.NoError(t, s.InsertConsoleLogs([]ConsoleLog{
		{RunID: run.ID, Seq: 1, EntryType: EntryAssistantText, Content: "hello"},
		{RunID: run.ID, Seq: 2, EntryType: EntryToolCall, Content: "ls"},
		{RunID: run.ID, Seq: 3, EntryType: EntryResult, Content: "done"},
	}))

	all, err := s.ListConsoleLogs(run.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, int64(3), all[2].Seq)

	tail, err := s.ListConsoleLogs(run.ID, 1)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(2), tail[0].Seq)
}

func TestInsertConsoleLogs_EmptyBatchIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertConsoleLogs(nil))
}
