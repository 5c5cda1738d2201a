package store

import (
	"database/sql"
	"strings"
)

// SearchEntities runs a full-text search over entity name/category using
// the entities_fts virtual table, ranked by bm25. If the query contains
// characters the FTS5 query syntax rejects (quotes, asterisks, colons,
// parentheses - all meaningful to MATCH), it falls back to a plain LIKE
// scan instead of erroring out. An empty or all-whitespace query returns no
// results.
func (s *Store) SearchEntities(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if !isSafeFTSQuery(query) {
		return s.searchEntitiesLike(query, limit)
	}
	rows, err := s.db.Query(`
		SELECT e.id, e.name, e.type, e.category, e.embedded_at, e.created_at, e.updated_at, bm25(entities_fts) AS rank
		FROM entities_fts
		JOIN entities e ON e.id = entities_fts.rowid
		WHERE entities_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return s.searchEntitiesLike(query, limit)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		e, rank, err := scanEntityWithRank(rows)
		if err != nil {
			return nil, err
		}
		// bm25 is negative-is-better; fold it into a positive similarity
		// score so callers always compare "higher is better".
		out = append(out, SearchResult{Entity: *e, Score: -rank})
	}
	return out, rows.Err()
}

func (s *Store) searchEntitiesLike(query string, limit int) ([]SearchResult, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.Query(entitySelectCols+`
		FROM entities WHERE name LIKE ? OR category LIKE ?
		ORDER BY id LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, SearchResult{Entity: *e, Score: 0})
	}
	return out, rows.Err()
}

// isSafeFTSQuery reports whether query is plain enough to pass straight to
// an FTS5 MATCH expression without tripping its query-syntax parser.
func isSafeFTSQuery(query string) bool {
	if strings.TrimSpace(query) == "" {
		return false
	}
	return !strings.ContainsAny(query, `"*:()^-`)
}

func scanEntityWithRank(row rowScanner) (*Entity, float64, error) {
	var e Entity
	var embeddedAt sql.NullString
	var createdAt, updatedAt string
	var rank float64
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &e.Category, &embeddedAt, &createdAt, &updatedAt, &rank); err != nil {
		return nil, 0, err
	}
	if embeddedAt.Valid {
		ts, err := parseISO(embeddedAt.String)
		if err != nil {
			return nil, 0, err
		}
		e.EmbeddedAt = &ts
	}
	var err error
	e.CreatedAt, err = parseISO(createdAt)
	if err != nil {
		return nil, 0, err
	}
	e.UpdatedAt, err = parseISO(updatedAt)
	if err != nil {
		return nil, 0, err
	}
	return &e, rank, nil
}

// hybridSearch merges an FTS-ranked entity list with a pre-computed
// semantic (cosine-similarity) list via reciprocal rank fusion:
//
//	score = 0.4 * (1 / (60 + r_fts)) + 0.6 * semantic_score
//
// r_fts is the entity's 1-based rank in the FTS list (absent entities
// contribute no FTS term). semantic_score is taken verbatim from
// semanticResults, which the caller has already ordered best-first; an
// entity absent from semanticResults contributes no semantic term. The
// merged set is the union of both lists, sorted by combined score
// descending, truncated to limit.
func hybridSearch(ftsResults []SearchResult, semanticResults []SearchResult, limit int) []SearchResult {
	const ftsWeight = 0.4
	const semanticWeight = 0.6
	const rrfK = 60

	type acc struct {
		entity Entity
		score  float64
	}
	combined := make(map[int64]*acc)

	for i, r := range ftsResults {
		rank := i + 1
		combined[r.Entity.ID] = &acc{entity: r.Entity, score: ftsWeight * (1.0 / float64(rrfK+rank))}
	}
	for _, r := range semanticResults {
		if a, ok := combined[r.Entity.ID]; ok {
			a.score += semanticWeight * r.Score
		} else {
			combined[r.Entity.ID] = &acc{entity: r.Entity, score: semanticWeight * r.Score}
		}
	}

	out := make([]SearchResult, 0, len(combined))
	for _, a := range combined {
		out = append(out, SearchResult{Entity: a.entity, Score: a.score})
	}
	// simple insertion sort by score desc; result sets are small (search
	// result pages), so an O(n^2) sort keeps this dependency-free.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HybridSearch runs SearchEntities for the FTS side of hybridSearch and
// fuses it with a caller-supplied, already-ranked semantic result list.
// Passing a nil semanticResults performs an FTS-only ranked search.
func (s *Store) HybridSearch(query string, semanticResults []SearchResult, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	fts, err := s.SearchEntities(query, limit*2)
	if err != nil {
		return nil, err
	}
	return hybridSearch(fts, semanticResults, limit), nil
}
