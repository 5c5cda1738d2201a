package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEntityByName_NilWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	e, err := s.GetEntityByName("nope")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestListEntities_FiltersByCategory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateEntity("alice", "person", "people")
	require.NoError(t, err)
	_, err = s.CreateEntity("widget", "tool", "tools")
	require.NoError(t, err)

	cat := "tools"
	list, err := s.ListEntities(&cat)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "widget", list[0].Name)
}

func TestListUnembeddedEntities_ExcludesEmbedded(t *testing.T) {
	s := newTestStore(t)
	e1, err := s.CreateEntity("a", "x", "c")
	require.NoError(t, err)
	e2, err := s.CreateEntity("b", "x", "c")
	require.NoError(t, err)

	require.NoError(t, s.UpsertEmbedding(Embedding{
		EntityID: e1.ID, SourceType: SourceEntity, SourceID: e1.ID,
		TextHash: "h1", Vector: []byte{1, 2, 3}, Model: "m", Dimensions: 3,
	}))

	unembedded, err := s.ListUnembeddedEntities(10)
	require.NoError(t, err)
	require.Len(t, unembedded, 1)
	assert.Equal(t, e2.ID, unembedded[0].ID)

	gotE1, err := s.GetEntity(e1.ID)
	require.NoError(t, err)
	require.NotNil(t, gotE1.EmbeddedAt)
}

func TestDeleteEntity_CascadesObservationsAndRelations(t *testing.T) {
	s := newTestStore(t)
	e1, err := s.CreateEntity("a", "x", "c")
	require.NoError(t, err)
	e2, err := s.CreateEntity("b", "x", "c")
	require.NoError(t, err)

	_, err = s.AddObservation(e1.ID, "note", "test")
	require.NoError(t, err)
	_, err = s.AddRelation(e1.ID, e2.ID, "related_to")
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntity(e1.ID))

	obs, err := s.ListObservations(e1.ID, 0)
	require.NoError(t, err)
	assert.Len(t, obs, 0)

	rels, err := s.ListRelationsForEntity(e2.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 0)
}

func TestDeleteEntity_UnlinksReferencingTasks(t *testing.T) {
	s := newTestStore(t)
	entity, err := s.CreateEntity("Task: demo", "task_result", "task")
	require.NoError(t, err)

	task, err := s.CreateTask(Task{
		Name: "demo", Prompt: "p", TriggerType: TriggerManual, MemoryEntityID: &entity.ID,
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntity(entity.ID))

	got, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MemoryEntityID)
}
