package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

const termColumns = `id, code, name, start_date, end_date, subjects_loaded, created_at, updated_at`

// TermRepository persists catalog terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs the repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

func (r *TermRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindCurrent returns the term whose [start - window, end] range contains today.
// A term already in session wins over one in its pre-term window.
func (r *TermRepository) FindCurrent(ctx context.Context, today time.Time, window time.Duration) (*models.Term, error) {
	day := today.UTC().Truncate(24 * time.Hour)
	query := fmt.Sprintf(`SELECT %s FROM terms
WHERE start_date <= $1 AND end_date >= $2
ORDER BY (start_date <= $2) DESC, start_date DESC
LIMIT 1`, termColumns)
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, day.Add(window), day); err != nil {
		return nil, err
	}
	return &term, nil
}

// UpsertByCode inserts term, or refreshes the dates of the row that already owns its code.
// term is updated in place with the persisted id and subjects_loaded flag.
func (r *TermRepository) UpsertByCode(ctx context.Context, exec sqlx.ExtContext, term *models.Term) (bool, error) {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if term.CreatedAt.IsZero() {
		term.CreatedAt = now
	}
	term.UpdatedAt = now

	const query = `INSERT INTO terms (id, code, name, start_date, end_date, subjects_loaded, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, updated_at = EXCLUDED.updated_at
RETURNING id, subjects_loaded, created_at, (xmax = 0) AS inserted`

	var row struct {
		ID             string    `db:"id"`
		SubjectsLoaded bool      `db:"subjects_loaded"`
		CreatedAt      time.Time `db:"created_at"`
		Inserted       bool      `db:"inserted"`
	}
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query,
		term.ID, term.Code, term.Name, term.StartDate, term.EndDate, term.CreatedAt, term.UpdatedAt); err != nil {
		return false, fmt.Errorf("upsert term %s: %w", term.Code, err)
	}
	term.ID = row.ID
	term.SubjectsLoaded = row.SubjectsLoaded
	term.CreatedAt = row.CreatedAt
	return row.Inserted, nil
}

// MarkSubjectsLoaded flips subjects_loaded; it never flips back.
func (r *TermRepository) MarkSubjectsLoaded(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE terms SET subjects_loaded = TRUE, updated_at = $2 WHERE id = $1 AND subjects_loaded = FALSE`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark subjects loaded: %w", err)
	}
	return nil
}
