package store

import "fmt"

// AddRelation inserts a typed edge between two entities.
func (s *Store) AddRelation(from, to int64, relType string) (*Relation, error) {
	res, err := s.db.Exec(`INSERT INTO relations (from_entity_id, to_entity_id, type) VALUES (?, ?, ?)`, from, to, relType)
	if err != nil {
		return nil, fmt.Errorf("store: add relation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Relation{ID: id, From: from, To: to, Type: relType}, nil
}

// GetRelation fetches a Relation by id.
func (s *Store) GetRelation(id int64) (*Relation, error) {
	var r Relation
	err := s.db.QueryRow(`SELECT id, from_entity_id, to_entity_id, type FROM relations WHERE id = ?`, id).
		Scan(&r.ID, &r.From, &r.To, &r.Type)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRelationsForEntity returns all relations where entityID appears on
// either side.
func (s *Store) ListRelationsForEntity(entityID int64) ([]Relation, error) {
	rows, err := s.db.Query(`
		SELECT id, from_entity_id, to_entity_id, type FROM relations
		WHERE from_entity_id = ? OR to_entity_id = ? ORDER BY id`, entityID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.ID, &r.From, &r.To, &r.Type); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRelation removes a Relation.
func (s *Store) DeleteRelation(id int64) error {
	_, err := s.db.Exec(`DELETE FROM relations WHERE id = ?`, id)
	return err
}
