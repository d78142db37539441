package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

const courseColumns = `id, subject_id, course_number, name, is_cancelled, created_at, updated_at`

// CourseRepository persists catalog courses and their meeting times.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// MarkAllCancelled flags every course in the system as cancelled.
func (r *CourseRepository) MarkAllCancelled(ctx context.Context) (int64, error) {
	const query = `UPDATE courses SET is_cancelled = TRUE, updated_at = $1 WHERE is_cancelled = FALSE`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark courses cancelled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancelled courses rows affected: %w", err)
	}
	return affected, nil
}

// FindByNaturalKey returns every row matching (subject_id, course_number), locking them.
func (r *CourseRepository) FindByNaturalKey(ctx context.Context, exec sqlx.ExtContext, subjectID, courseNumber string) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE subject_id = $1 AND course_number = $2 ORDER BY created_at FOR UPDATE`, courseColumns)
	var courses []models.Course
	if err := sqlx.SelectContext(ctx, r.exec(exec), &courses, query, subjectID, courseNumber); err != nil {
		return nil, fmt.Errorf("find course %s: %w", courseNumber, err)
	}
	return courses, nil
}

// Insert stores a new course.
func (r *CourseRepository) Insert(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, subject_id, course_number, name, is_cancelled, created_at, updated_at)
VALUES (:id, :subject_id, :course_number, :name, :is_cancelled, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, course); err != nil {
		return fmt.Errorf("insert course %s: %w", course.CourseNumber, err)
	}
	return nil
}

// Reaffirm renames the course and clears is_cancelled.
func (r *CourseRepository) Reaffirm(ctx context.Context, exec sqlx.ExtContext, id, name string) error {
	const query = `UPDATE courses SET name = $2, is_cancelled = FALSE, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, name, time.Now().UTC()); err != nil {
		return fmt.Errorf("reaffirm course %s: %w", id, err)
	}
	return nil
}

// DeleteByIDs removes courses; dependent rows cascade.
func (r *CourseRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `DELETE FROM courses WHERE id = ANY($1)`
	if _, err := r.exec(exec).ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete courses: %w", err)
	}
	return nil
}

// ReplaceMeetingTimes wipes the course's meeting times and inserts times.
func (r *CourseRepository) ReplaceMeetingTimes(ctx context.Context, exec sqlx.ExtContext, courseID string, times []models.MeetingTime) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM meeting_times WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear meeting times: %w", err)
	}
	const insert = `INSERT INTO meeting_times (id, course_id, meet_days, start_time, end_time)
VALUES (:id, :course_id, :meet_days, :start_time, :end_time)`
	for i := range times {
		mt := &times[i]
		if mt.ID == "" {
			mt.ID = uuid.NewString()
		}
		mt.CourseID = courseID
		if _, err := sqlx.NamedExecContext(ctx, target, insert, mt); err != nil {
			return fmt.Errorf("insert meeting time: %w", err)
		}
	}
	return nil
}

// AttachSection links a section to the course if not already linked.
func (r *CourseRepository) AttachSection(ctx context.Context, exec sqlx.ExtContext, courseID, sectionID string) error {
	const query = `INSERT INTO course_sections (course_id, section_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, courseID, sectionID); err != nil {
		return fmt.Errorf("attach section: %w", err)
	}
	return nil
}
