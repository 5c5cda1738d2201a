package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertEmbedding inserts or replaces the vector for (sourceType, sourceID,
// model), and stamps the owning entity's embedded_at.
func (s *Store) UpsertEmbedding(e Embedding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO embeddings (entity_id, source_type, source_id, text_hash, vector, model, dimensions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, source_id, model) DO UPDATE SET
			entity_id = excluded.entity_id,
			text_hash = excluded.text_hash,
			vector = excluded.vector,
			dimensions = excluded.dimensions`,
		e.EntityID, e.SourceType, e.SourceID, e.TextHash, e.Vector, e.Model, e.Dimensions)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: upsert embedding: %w", err)
	}
	if _, err := tx.Exec(`UPDATE entities SET embedded_at = ? WHERE id = ?`, formatISO(time.Now().UTC()), e.EntityID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetEmbeddingsForEntity returns all embeddings owned by entityID.
func (s *Store) GetEmbeddingsForEntity(entityID int64) ([]Embedding, error) {
	rows, err := s.db.Query(`
		SELECT id, entity_id, source_type, source_id, text_hash, vector, model, dimensions
		FROM embeddings WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmbeddings(rows)
}

// GetAllEmbeddings returns every embedding row.
func (s *Store) GetAllEmbeddings() ([]Embedding, error) {
	rows, err := s.db.Query(`SELECT id, entity_id, source_type, source_id, text_hash, vector, model, dimensions FROM embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmbeddings(rows)
}

// EntitiesMissingEmbedding returns up to limit entity ids with
// embedded_at=null, oldest-created first — the indexer's work queue.
func (s *Store) EntitiesMissingEmbedding(limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id FROM entities WHERE embedded_at IS NULL ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteEmbeddingsForEntity removes all embeddings owned by entityID.
func (s *Store) DeleteEmbeddingsForEntity(entityID int64) error {
	_, err := s.db.Exec(`DELETE FROM embeddings WHERE entity_id = ?`, entityID)
	return err
}

func scanEmbeddings(rows *sql.Rows) ([]Embedding, error) {
	var out []Embedding
	for rows.Next() {
		var e Embedding
		if err := rows.Scan(&e.ID, &e.EntityID, &e.SourceType, &e.SourceID, &e.TextHash, &e.Vector, &e.Model, &e.Dimensions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
