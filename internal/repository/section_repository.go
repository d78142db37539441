package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

// SectionRepository manages the global section pool.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// GetOrCreate returns the section named name, creating it when missing.
// An existing row is only read, never updated, so no row lock is taken on it.
func (r *SectionRepository) GetOrCreate(ctx context.Context, exec sqlx.ExtContext, name string) (*models.Section, error) {
	if exec == nil {
		exec = r.db
	}
	const insert = `INSERT INTO sections (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`
	if _, err := exec.ExecContext(ctx, insert, uuid.NewString(), name); err != nil {
		return nil, fmt.Errorf("create section %s: %w", name, err)
	}
	var section models.Section
	if err := sqlx.GetContext(ctx, exec, &section, `SELECT id, name FROM sections WHERE name = $1`, name); err != nil {
		return nil, fmt.Errorf("get section %s: %w", name, err)
	}
	return &section, nil
}
