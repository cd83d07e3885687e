package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"attendguard/internal/store"
)

// SQLSource loads enrollment records from the employees and
// employee_embeddings tables.
type SQLSource struct {
	db *store.DB
}

// NewSQLSource creates a source over an open database.
func NewSQLSource(db *store.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Load(ctx context.Context) ([]Identity, error) {
	rows, err := s.db.Client.QueryContext(ctx, `
		SELECT id, name, designation, department, pin
		FROM employees
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var out []Identity
	index := map[string]int{}
	for rows.Next() {
		var i Identity
		if err := rows.Scan(&i.ID, &i.Name, &i.Designation, &i.Department, &i.PIN); err != nil {
			return nil, err
		}
		index[i.ID] = len(out)
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := s.db.Client.QueryContext(ctx, `
		SELECT employee_id, vector
		FROM employee_embeddings
		ORDER BY employee_id, sample
	`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer erows.Close()

	for erows.Next() {
		var (
			id  string
			raw string
		)
		if err := erows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		pos, ok := index[id]
		if !ok {
			continue
		}
		var vec Embedding
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", id, err)
		}
		out[pos].Embeddings = append(out[pos].Embeddings, vec)
	}
	return out, erows.Err()
}

// Save writes an identity and its samples, replacing any previous samples.
// Enrollment tooling and tests use it; the core never writes identities.
func (s *SQLSource) Save(ctx context.Context, i Identity) error {
	if !ValidPIN(i.PIN) {
		return ErrInvalidPIN
	}
	tx, err := s.db.Client.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO employees (id, name, designation, department, pin)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			designation = EXCLUDED.designation,
			department = EXCLUDED.department,
			pin = EXCLUDED.pin
	`), i.ID, i.Name, i.Designation, i.Department, i.PIN); err != nil {
		return fmt.Errorf("upsert employee %s: %w", i.ID, err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM employee_embeddings WHERE employee_id = ?`), i.ID); err != nil {
		return err
	}
	for n, e := range i.Embeddings {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO employee_embeddings (employee_id, sample, vector) VALUES (?, ?, ?)
		`), i.ID, n, string(raw)); err != nil {
			return fmt.Errorf("insert embedding %d for %s: %w", n, i.ID, err)
		}
	}
	return tx.Commit()
}
