package store

import (
	"fmt"
	"time"
)

// AddObservation appends an Observation to entityID and bumps the
// entity's updated_at.
func (s *Store) AddObservation(entityID int64, content, source string) (*Observation, error) {
	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	res, err := tx.Exec(`
		INSERT INTO observations (entity_id, content, source, created_at)
		VALUES (?, ?, ?, ?)`, entityID, content, source, formatISO(now))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("store: add observation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if _, err := tx.Exec(`UPDATE entities SET updated_at = ? WHERE id = ?`, formatISO(now), entityID); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Observation{ID: id, EntityID: entityID, Content: content, Source: source, CreatedAt: now}, nil
}

// ListObservations returns an entity's observations, newest first. Id
// ordering (not updated_at) is deliberate: a pruned-then-readded entity
// must not resurface stale entries ahead of newer ones.
func (s *Store) ListObservations(entityID int64, limit int) ([]Observation, error) {
	query := `SELECT id, entity_id, content, source, created_at FROM observations WHERE entity_id = ? ORDER BY id DESC`
	args := []interface{}{entityID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Observation
	for rows.Next() {
		var o Observation
		var createdAt string
		if err := rows.Scan(&o.ID, &o.EntityID, &o.Content, &o.Source, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt, err = parseISO(createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PruneObservations deletes all but the most recent keep observations on
// entityID, ordered by id DESC (insertion order, newest first).
func (s *Store) PruneObservations(entityID int64, keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM observations WHERE entity_id = ? AND id NOT IN (
			SELECT id FROM observations WHERE entity_id = ? ORDER BY id DESC LIMIT ?
		)`, entityID, entityID, keep)
	return err
}

// DeleteObservation removes a single Observation.
func (s *Store) DeleteObservation(id int64) error {
	_, err := s.db.Exec(`DELETE FROM observations WHERE id = ?`, id)
	return err
}
