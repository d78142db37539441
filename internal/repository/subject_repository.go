package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

// SubjectRepository persists subjects of a term.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertAll stores subjects. Rows already present for (term_id, code) are left untouched.
func (r *SubjectRepository) InsertAll(ctx context.Context, exec sqlx.ExtContext, subjects []models.Subject) (int, error) {
	const query = `INSERT INTO subjects (id, term_id, code, name, courses_loaded, created_at)
VALUES (:id, :term_id, :code, :name, :courses_loaded, :created_at)
ON CONFLICT (term_id, code) DO NOTHING`
	target := r.exec(exec)
	now := time.Now().UTC()
	inserted := 0
	for i := range subjects {
		subject := &subjects[i]
		if subject.ID == "" {
			subject.ID = uuid.NewString()
		}
		if subject.CreatedAt.IsZero() {
			subject.CreatedAt = now
		}
		result, err := sqlx.NamedExecContext(ctx, target, query, subject)
		if err != nil {
			return inserted, fmt.Errorf("insert subject %s: %w", subject.Code, err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ListByTerm returns subjects of termID ordered by code.
func (r *SubjectRepository) ListByTerm(ctx context.Context, termID string) ([]models.Subject, error) {
	const query = `SELECT id, term_id, code, name, courses_loaded, created_at FROM subjects WHERE term_id = $1 ORDER BY code`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, termID); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// LockForUpdate takes a row lock on the subject for the rest of the transaction.
func (r *SubjectRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `SELECT id FROM subjects WHERE id = $1 FOR UPDATE`
	var locked string
	if err := sqlx.GetContext(ctx, r.exec(exec), &locked, query, id); err != nil {
		return fmt.Errorf("lock subject %s: %w", id, err)
	}
	return nil
}

// MarkCoursesLoaded sets courses_loaded for the subject.
func (r *SubjectRepository) MarkCoursesLoaded(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE subjects SET courses_loaded = TRUE WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark courses loaded: %w", err)
	}
	return nil
}

// CourseCounts returns active course counts per subject of termID.
func (r *SubjectRepository) CourseCounts(ctx context.Context, termID string) ([]models.SubjectCourseCount, error) {
	const query = `SELECT s.id AS subject_id, s.code, s.courses_loaded, COUNT(c.id) FILTER (WHERE c.is_cancelled = FALSE) AS courses
FROM subjects s
LEFT JOIN courses c ON c.subject_id = s.id
WHERE s.term_id = $1
GROUP BY s.id, s.code, s.courses_loaded
ORDER BY s.code`
	var counts []models.SubjectCourseCount
	if err := r.db.SelectContext(ctx, &counts, query, termID); err != nil {
		return nil, fmt.Errorf("count courses by subject: %w", err)
	}
	return counts, nil
}
