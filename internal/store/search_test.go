package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchEntities_MatchesOnNameAndCategory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateEntity("daymon scheduler", "component", "architecture")
	require.NoError(t, err)
	_, err = s.CreateEntity("unrelated widget", "thing", "misc")
	require.NoError(t, err)

	results, err := s.SearchEntities("scheduler", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "daymon scheduler", results[0].Entity.Name)
}

func TestSearchEntities_FallsBackToLikeOnUnsafeQuery(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateEntity("weird(name)", "thing", "misc")
	require.NoError(t, err)

	results, err := s.SearchEntities("weird(name)", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchEntities_EmptyQueryReturnsNoResults(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateEntity("anything", "thing", "misc")
	require.NoError(t, err)

	results, err := s.SearchEntities("", 10)
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestHybridSearch_FusesFTSAndSemanticRanks(t *testing.T) {
	entA := Entity{ID: 1, Name: "a"}
	entB := Entity{ID: 2, Name: "b"}
	entC := Entity{ID: 3, Name: "c"}

	fts := []SearchResult{{Entity: entA, Score: 0}, {Entity: entB, Score: 0}}
	semantic := []SearchResult{{Entity: entB, Score: 0.9}, {Entity: entC, Score: 0.8}}

	merged := hybridSearch(fts, semantic, 10)
	require.Len(t, merged, 3)
	// b appears in both lists (rank-1 FTS term + 0.9 semantic term) and
	// should outrank a (rank-2 FTS term only) and c (semantic term only).
	assert.Equal(t, entB.ID, merged[0].Entity.ID)
}

func TestHybridSearch_RespectsLimit(t *testing.T) {
	fts := []SearchResult{{Entity: Entity{ID: 1}}, {Entity: Entity{ID: 2}}, {Entity: Entity{ID: 3}}}
	merged := hybridSearch(fts, nil, 2)
	assert.Len(t, merged, 2)
}
