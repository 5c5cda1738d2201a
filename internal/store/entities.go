package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateEntity inserts a new memory Entity.
func (s *Store) CreateEntity(name, entityType, category string) (*Entity, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO entities (name, type, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, name, entityType, category, formatISO(now), formatISO(now))
	if err != nil {
		return nil, fmt.Errorf("store: create entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetEntity(id)
}

// GetEntity fetches an Entity by id.
func (s *Store) GetEntity(id int64) (*Entity, error) {
	row := s.db.QueryRow(entitySelectCols+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// GetEntityByName fetches an Entity by exact name, or nil if absent.
func (s *Store) GetEntityByName(name string) (*Entity, error) {
	row := s.db.QueryRow(entitySelectCols+` FROM entities WHERE name = ? LIMIT 1`, name)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListEntities returns entities, optionally filtered by category.
func (s *Store) ListEntities(category *string) ([]Entity, error) {
	var rows *sql.Rows
	var err error
	if category != nil {
		rows, err = s.db.Query(entitySelectCols+` FROM entities WHERE category = ? ORDER BY id`, *category)
	} else {
		rows, err = s.db.Query(entitySelectCols + ` FROM entities ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// UpdateEntityTouch bumps an Entity's updated_at (used whenever an
// Observation is added).
func (s *Store) UpdateEntityTouch(id int64) error {
	_, err := s.db.Exec(`UPDATE entities SET updated_at = ? WHERE id = ?`, nowISO(), id)
	return err
}

// UpdateEntityEmbeddedAt marks an Entity's embedded_at timestamp, called
// whenever an Embedding upsert completes for it.
func (s *Store) UpdateEntityEmbeddedAt(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE entities SET embedded_at = ? WHERE id = ?`, formatISO(at), id)
	return err
}

// DeleteEntity deletes an Entity; Observations and Relations referencing
// it cascade. Tasks pointing at it as their memory entity are unlinked
// explicitly — tasks predate entities in the schema, so no FK covers this.
func (s *Store) DeleteEntity(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE tasks SET memory_entity_id = NULL WHERE memory_entity_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: delete entity: unlink tasks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entities WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: delete entity: %w", err)
	}
	return tx.Commit()
}

// ListUnembeddedEntities returns up to limit entities with embedded_at IS
// NULL, for the Scheduler's periodic embedding indexer.
func (s *Store) ListUnembeddedEntities(limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(entitySelectCols+` FROM entities WHERE embedded_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

const entitySelectCols = `SELECT id, name, type, category, embedded_at, created_at, updated_at`

func scanEntity(row *sql.Row) (*Entity, error) {
	return scanEntityGeneric(row)
}

func scanEntityRow(rows *sql.Rows) (*Entity, error) {
	return scanEntityGeneric(rows)
}

func scanEntityGeneric(row rowScanner) (*Entity, error) {
	var e Entity
	var embeddedAt sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &e.Category, &embeddedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if embeddedAt.Valid {
		ts, err := parseISO(embeddedAt.String)
		if err != nil {
			return nil, err
		}
		e.EmbeddedAt = &ts
	}
	var err error
	e.CreatedAt, err = parseISO(createdAt)
	if err != nil {
		return nil, err
	}
	e.UpdatedAt, err = parseISO(updatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
