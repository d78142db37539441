package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
)

const (
	progressCachePrefix  = "catalog:progress:"
	progressCachePattern = progressCachePrefix + "*"
)

type currentTermFinder interface {
	FindCurrent(ctx context.Context, today time.Time, window time.Duration) (*models.Term, error)
}

type subjectCounter interface {
	CourseCounts(ctx context.Context, termID string) ([]models.SubjectCourseCount, error)
}

// SyncProgressService answers catalog status and current-term queries.
type SyncProgressService struct {
	terms    currentTermFinder
	subjects subjectCounter
	state    *LoadStateTracker
	cache    *CacheService
	window   time.Duration
	cacheTTL time.Duration
	now      func() time.Time
}

// NewSyncProgressService constructs the service.
func NewSyncProgressService(terms currentTermFinder, subjects subjectCounter, state *LoadStateTracker, cache *CacheService, window, cacheTTL time.Duration) *SyncProgressService {
	if state == nil {
		state = ProcessLoadState()
	}
	return &SyncProgressService{
		terms:    terms,
		subjects: subjects,
		state:    state,
		cache:    cache,
		window:   window,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// CurrentTerm returns the persisted term that is current today.
func (s *SyncProgressService) CurrentTerm(ctx context.Context) (*models.Term, error) {
	term, err := s.terms.FindCurrent(ctx, s.now(), s.window)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoCurrentTerm
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
	}
	return term, nil
}

// Progress reports the load-state slots together with what has been persisted for the current term.
// Counts are cached per state so a stage transition never serves a stale payload.
func (s *SyncProgressService) Progress(ctx context.Context) (*dto.SyncProgress, error) {
	state := s.state.Snapshot(ctx)
	key := fmt.Sprintf("%s%s:%s:%s", progressCachePrefix, state.TermStatus, state.SubjectsStatus, state.CoursesStatus)

	var cached dto.SyncProgress
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		cached.State = state
		return &cached, nil
	}

	progress := &dto.SyncProgress{
		State:            state,
		SubjectsProgress: dto.SubjectsProgress{Subjects: []string{}},
		CoursesProgress: dto.CoursesProgress{Courses: dto.CourseCounts{
			Done: map[string]int{},
			Todo: map[string]int{},
		}},
	}

	term, err := s.CurrentTerm(ctx)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNoCurrentTerm) {
			return progress, nil
		}
		return nil, err
	}
	name := term.Name
	progress.TermProgress.CurrentTerm = &name

	counts, err := s.subjects.CourseCounts(ctx, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count courses")
	}
	for _, c := range counts {
		progress.SubjectsProgress.Subjects = append(progress.SubjectsProgress.Subjects, c.Code)
		if c.CoursesLoaded {
			progress.CoursesProgress.Courses.Done[c.Code] = c.Courses
		} else {
			progress.CoursesProgress.Courses.Todo[c.Code] = 0
		}
	}

	_ = s.cache.Set(ctx, key, progress, s.cacheTTL)
	return progress, nil
}
