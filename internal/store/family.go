package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/pillbox/internal/model"
	"github.com/google/uuid"
)

// ErrNotFound is returned by writes that target a row that does not exist.
var ErrNotFound = errors.New("not found")

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func (s *FamilyStore) Create(ctx context.Context, name, email string) (*model.Family, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO families (id, name, email) VALUES (?, ?, ?)",
		id, name, email,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id string) (*model.Family, error) {
	var f model.Family
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, created_at, updated_at FROM families WHERE id = ?",
		id,
	).Scan(&f.ID, &f.Name, &f.Email, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query family: %w", err)
	}
	return &f, nil
}

func (s *FamilyStore) List(ctx context.Context) ([]model.Family, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, created_at, updated_at FROM families ORDER BY name, id",
	)
	if err != nil {
		return nil, fmt.Errorf("query families: %w", err)
	}
	defer rows.Close()

	var families []model.Family
	for rows.Next() {
		var f model.Family
		if err := rows.Scan(&f.ID, &f.Name, &f.Email, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, f)
	}
	return families, rows.Err()
}

func (s *FamilyStore) Update(ctx context.Context, id, name, email string) (*model.Family, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE families SET name = ?, email = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		name, email, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update family: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return nil, fmt.Errorf("update family %s: %w", id, err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a family. Its medications are removed by the foreign key cascade.
func (s *FamilyStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM families WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete family: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
