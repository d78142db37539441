package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
	"github.com/noah-isme/gtcollab-api/pkg/jobs"
	"github.com/noah-isme/gtcollab-api/pkg/logger"
	"github.com/noah-isme/gtcollab-api/pkg/middleware/requestid"
)

// JobKindCatalogSync identifies catalog sync jobs on the queue.
const JobKindCatalogSync = "catalog_sync"

const catalogDateLayout = "2006-01-02"

type catalogSource interface {
	ListTerms(ctx context.Context) ([]dto.CatalogTerm, error)
	ListSubjects(ctx context.Context, termCode string) ([]dto.CatalogSubject, error)
	ListCourses(ctx context.Context, termCode, subjectCode string) ([]dto.CatalogCourse, error)
}

type syncTermRepository interface {
	FindCurrent(ctx context.Context, today time.Time, window time.Duration) (*models.Term, error)
	UpsertByCode(ctx context.Context, exec sqlx.ExtContext, term *models.Term) (bool, error)
	MarkSubjectsLoaded(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type syncSubjectRepository interface {
	InsertAll(ctx context.Context, exec sqlx.ExtContext, subjects []models.Subject) (int, error)
	ListByTerm(ctx context.Context, termID string) ([]models.Subject, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error
	MarkCoursesLoaded(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type syncCourseRepository interface {
	MarkAllCancelled(ctx context.Context) (int64, error)
	FindByNaturalKey(ctx context.Context, exec sqlx.ExtContext, subjectID, courseNumber string) ([]models.Course, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
	Reaffirm(ctx context.Context, exec sqlx.ExtContext, id, name string) error
	DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) error
	ReplaceMeetingTimes(ctx context.Context, exec sqlx.ExtContext, courseID string, times []models.MeetingTime) error
	AttachSection(ctx context.Context, exec sqlx.ExtContext, courseID, sectionID string) error
}

type sectionPool interface {
	GetOrCreate(ctx context.Context, exec sqlx.ExtContext, name string) (*models.Section, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) (string, error)
}

// CatalogSyncConfig tunes the sync engine.
type CatalogSyncConfig struct {
	TermType      string
	PreTermWindow time.Duration
	Concurrency   int
}

// CatalogSyncService reconciles the external course catalog into the relational store.
type CatalogSyncService struct {
	source   catalogSource
	terms    syncTermRepository
	subjects syncSubjectRepository
	courses  syncCourseRepository
	sections sectionPool
	tx       txRunner
	state    *LoadStateTracker
	cfg      CatalogSyncConfig

	queue   jobEnqueuer
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// CatalogSyncOption customises the service.
type CatalogSyncOption func(*CatalogSyncService)

// WithSyncLogger sets the logger.
func WithSyncLogger(l *zap.Logger) CatalogSyncOption {
	return func(s *CatalogSyncService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSyncMetrics records run metrics.
func WithSyncMetrics(m *MetricsService) CatalogSyncOption {
	return func(s *CatalogSyncService) { s.metrics = m }
}

// WithSyncCache invalidates cached progress after each run.
func WithSyncCache(c *CacheService) CatalogSyncOption {
	return func(s *CatalogSyncService) { s.cache = c }
}

// WithSyncClock overrides the wall clock.
func WithSyncClock(now func() time.Time) CatalogSyncOption {
	return func(s *CatalogSyncService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCatalogSyncService constructs the sync engine.
func NewCatalogSyncService(
	source catalogSource,
	terms syncTermRepository,
	subjects syncSubjectRepository,
	courses syncCourseRepository,
	sections sectionPool,
	tx txRunner,
	state *LoadStateTracker,
	cfg CatalogSyncConfig,
	opts ...CatalogSyncOption,
) *CatalogSyncService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TermType == "" {
		cfg.TermType = "2"
	}
	if state == nil {
		state = ProcessLoadState()
	}
	svc := &CatalogSyncService{
		source:   source,
		terms:    terms,
		subjects: subjects,
		courses:  courses,
		sections: sections,
		tx:       tx,
		state:    state,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// UseQueue attaches the queue that TriggerAsync feeds.
func (s *CatalogSyncService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// TriggerAsync schedules a run on the sync queue and returns the job id.
func (s *CatalogSyncService) TriggerAsync(ctx context.Context) (string, error) {
	if s.queue == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "sync queue not configured")
	}
	if s.state.Busy() {
		return "", appErrors.ErrSyncInProgress
	}
	id, err := s.queue.TryEnqueue(jobs.Job{Kind: JobKindCatalogSync, RequestID: requestid.FromContext(ctx)})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return "", appErrors.Clone(appErrors.ErrSyncInProgress, "catalog sync already queued")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue catalog sync")
	}
	return id, nil
}

// HandleJob is the queue handler for catalog sync jobs.
func (s *CatalogSyncService) HandleJob(ctx context.Context, job jobs.Job) error {
	log := logger.ForContext(ctx, s.logger).With(zap.String("job_id", job.ID))
	report, err := s.Sync(ctx)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrSyncInProgress) {
			log.Info("catalog sync skipped, another run is active")
			return nil
		}
		return err
	}
	log.Info("catalog sync job finished", zap.String("run_id", report.RunID), zap.Int("failed_subjects", len(report.FailedSubjects)))
	return nil
}

// RunScheduled runs one sync from the cron scheduler.
func (s *CatalogSyncService) RunScheduled(ctx context.Context) error {
	ctx = requestid.WithValue(ctx, requestid.New())
	_, err := s.Sync(ctx)
	if appErrors.Is(err, appErrors.ErrSyncInProgress) {
		return nil
	}
	return err
}

// Sync runs the full term, subject and course pipeline once.
func (s *CatalogSyncService) Sync(ctx context.Context) (*dto.SyncReport, error) {
	release, err := s.state.TryBegin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &dto.SyncReport{
		RunID:          uuid.NewString(),
		StartedAt:      s.now().UTC(),
		FailedSubjects: []dto.SubjectFailure{},
	}
	log := logger.ForContext(ctx, s.logger).With(zap.String("run_id", report.RunID))
	log.Info("catalog sync started")

	fail := func(stage models.LoadStage, err error) (*dto.SyncReport, error) {
		s.state.Reset(ctx)
		s.metrics.RecordSyncRun(nil, true)
		log.Error("catalog sync aborted", zap.String("stage", string(stage)), zap.Error(err))
		return nil, err
	}

	phaseStart := time.Now()
	term, err := s.resolveTerm(ctx, report)
	if err != nil {
		return fail(models.StageTerm, err)
	}
	s.state.Set(ctx, models.StageTerm, models.LoadStatusLoaded)
	s.metrics.ObserveSyncPhase(models.StageTerm, time.Since(phaseStart))
	log.Info("term resolved", zap.String("term", term.Code), zap.Bool("created", report.TermCreated))

	phaseStart = time.Now()
	if err := s.resolveSubjects(ctx, term, report); err != nil {
		return fail(models.StageSubjects, err)
	}
	s.state.Set(ctx, models.StageSubjects, models.LoadStatusLoaded)
	s.metrics.ObserveSyncPhase(models.StageSubjects, time.Since(phaseStart))
	log.Info("subjects resolved", zap.Int("inserted", report.SubjectsInserted))

	phaseStart = time.Now()
	if err := s.syncCourses(ctx, term, report, log); err != nil {
		return fail(models.StageCourses, err)
	}
	s.state.Set(ctx, models.StageCourses, models.LoadStatusLoaded)
	s.metrics.ObserveSyncPhase(models.StageCourses, time.Since(phaseStart))

	report.FinishedAt = s.now().UTC()
	s.metrics.RecordSyncRun(report, false)
	_ = s.cache.Invalidate(ctx, progressCachePattern)

	log.Info("catalog sync finished",
		zap.Int("subjects_synced", report.SubjectsSynced),
		zap.Int("courses_inserted", report.CoursesInserted),
		zap.Int("courses_updated", report.CoursesUpdated),
		zap.Int("courses_repaired", report.CoursesRepaired),
		zap.Int("failed_subjects", len(report.FailedSubjects)),
	)
	return report, nil
}

func (s *CatalogSyncService) resolveTerm(ctx context.Context, report *dto.SyncReport) (*models.Term, error) {
	today := s.now()
	term, err := s.terms.FindCurrent(ctx, today, s.cfg.PreTermWindow)
	if err == nil {
		report.TermCode, report.TermName = term.Code, term.Name
		return term, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find current term: %w", err)
	}

	listed, err := s.source.ListTerms(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCatalogUnavailable.Code, appErrors.ErrCatalogUnavailable.Status, "failed to load terms")
	}
	for _, record := range listed {
		if record.Type != s.cfg.TermType {
			continue
		}
		start, err := time.Parse(catalogDateLayout, record.StartDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCatalogUnavailable.Code, appErrors.ErrCatalogUnavailable.Status, "invalid term start date")
		}
		end, err := time.Parse(catalogDateLayout, record.EndDate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCatalogUnavailable.Code, appErrors.ErrCatalogUnavailable.Status, "invalid term end date")
		}
		candidate := models.Term{Code: record.TermCode, Name: record.Description, StartDate: start, EndDate: end}
		if !candidate.IsCurrent(today, s.cfg.PreTermWindow) {
			continue
		}
		created, err := s.terms.UpsertByCode(ctx, nil, &candidate)
		if err != nil {
			return nil, err
		}
		report.TermCode, report.TermName, report.TermCreated = candidate.Code, candidate.Name, created
		return &candidate, nil
	}
	return nil, appErrors.ErrNoCurrentTerm
}

func (s *CatalogSyncService) resolveSubjects(ctx context.Context, term *models.Term, report *dto.SyncReport) error {
	if term.SubjectsLoaded {
		return nil
	}
	listed, err := s.source.ListSubjects(ctx, term.Code)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCatalogUnavailable.Code, appErrors.ErrCatalogUnavailable.Status, "failed to load subjects")
	}

	subjects := make([]models.Subject, 0, len(listed))
	for _, record := range listed {
		subjects = append(subjects, models.Subject{TermID: term.ID, Code: record.SubjectCode, Name: record.Description})
	}

	var inserted int
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		n, err := s.subjects.InsertAll(ctx, extOf(tx), subjects)
		if err != nil {
			return err
		}
		inserted = n
		return s.terms.MarkSubjectsLoaded(ctx, extOf(tx), term.ID)
	})
	if err != nil {
		return fmt.Errorf("persist subjects: %w", err)
	}
	term.SubjectsLoaded = true
	report.SubjectsInserted = inserted
	return nil
}

type subjectOutcome struct {
	inserted     int
	updated      int
	repaired     int
	meetingTimes int
}

func (s *CatalogSyncService) syncCourses(ctx context.Context, term *models.Term, report *dto.SyncReport, log *zap.Logger) error {
	cancelled, err := s.courses.MarkAllCancelled(ctx)
	if err != nil {
		return err
	}
	report.CoursesCancelled = cancelled

	subjects, err := s.subjects.ListByTerm(ctx, term.ID)
	if err != nil {
		return err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, subject := range subjects {
		subject := subject
		g.Go(func() error {
			outcome, err := s.syncSubject(ctx, term, subject, log)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("subject skipped", zap.String("subject", subject.Code), zap.Error(err))
				report.FailedSubjects = append(report.FailedSubjects, dto.SubjectFailure{SubjectCode: subject.Code, Error: err.Error()})
				return nil
			}
			report.SubjectsSynced++
			report.CoursesInserted += outcome.inserted
			report.CoursesUpdated += outcome.updated
			report.CoursesRepaired += outcome.repaired
			report.MeetingTimes += outcome.meetingTimes
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	sort.Slice(report.FailedSubjects, func(i, j int) bool {
		return report.FailedSubjects[i].SubjectCode < report.FailedSubjects[j].SubjectCode
	})
	return nil
}

// courseGroup collects every catalog record (one per section) of a single course number.
type courseGroup struct {
	number   string
	name     string
	sections []string
	times    []models.MeetingTime
}

func groupCourseRecords(records []dto.CatalogCourse) []*courseGroup {
	groups := make([]*courseGroup, 0, len(records))
	index := make(map[string]*courseGroup, len(records))
	for _, record := range records {
		g, ok := index[record.CourseNumber]
		if !ok {
			g = &courseGroup{number: record.CourseNumber, name: record.CourseTitle}
			index[record.CourseNumber] = g
			groups = append(groups, g)
		}
		if name := strings.TrimSpace(record.SectionNumber); name != "" && !containsValue(g.sections, name) {
			g.sections = append(g.sections, name)
		}
		for _, raw := range record.MeetingTimes {
			if !raw.HasAny() {
				continue
			}
			g.times = append(g.times, meetingTimeFromCatalog(raw))
		}
	}
	return groups
}

func (s *CatalogSyncService) syncSubject(ctx context.Context, term *models.Term, subject models.Subject, log *zap.Logger) (subjectOutcome, error) {
	records, err := s.source.ListCourses(ctx, term.Code, subject.Code)
	if err != nil {
		return subjectOutcome{}, err
	}
	groups := groupCourseRecords(records)
	sectionIDs, err := s.resolveSections(ctx, groups)
	if err != nil {
		return subjectOutcome{}, fmt.Errorf("resolve sections: %w", err)
	}

	var outcome subjectOutcome
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		outcome = subjectOutcome{}
		exec := extOf(tx)
		if err := s.subjects.LockForUpdate(ctx, exec, subject.ID); err != nil {
			return err
		}
		for _, group := range groups {
			if err := s.upsertCourse(ctx, exec, subject, group, sectionIDs, &outcome, log); err != nil {
				return err
			}
		}
		return s.subjects.MarkCoursesLoaded(ctx, exec, subject.ID)
	})
	if err != nil {
		return subjectOutcome{}, fmt.Errorf("persist courses: %w", err)
	}
	return outcome, nil
}

// resolveSections creates missing sections in name order, each in its own
// statement. Section rows are shared by every subject, so the subject
// transaction only references them and never holds their locks.
func (s *CatalogSyncService) resolveSections(ctx context.Context, groups []*courseGroup) (map[string]string, error) {
	var names []string
	for _, group := range groups {
		for _, name := range group.sections {
			if !containsValue(names, name) {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)

	ids := make(map[string]string, len(names))
	for _, name := range names {
		section, err := s.sections.GetOrCreate(ctx, nil, name)
		if err != nil {
			return nil, err
		}
		ids[name] = section.ID
	}
	return ids, nil
}

func (s *CatalogSyncService) upsertCourse(ctx context.Context, exec sqlx.ExtContext, subject models.Subject, group *courseGroup, sectionIDs map[string]string, outcome *subjectOutcome, log *zap.Logger) error {
	existing, err := s.courses.FindByNaturalKey(ctx, exec, subject.ID, group.number)
	if err != nil {
		return err
	}

	var course *models.Course
	switch {
	case len(existing) == 1:
		course = &existing[0]
		if err := s.courses.Reaffirm(ctx, exec, course.ID, group.name); err != nil {
			return err
		}
		course.Name, course.IsCancelled = group.name, false
		outcome.updated++
	case len(existing) > 1:
		ids := make([]string, len(existing))
		for i, c := range existing {
			ids[i] = c.ID
		}
		log.Warn("duplicate course rows, recreating",
			zap.String("subject", subject.Code),
			zap.String("course_number", group.number),
			zap.Int("rows", len(existing)),
		)
		if err := s.courses.DeleteByIDs(ctx, exec, ids); err != nil {
			return err
		}
		outcome.repaired++
	}

	if course == nil {
		course = &models.Course{SubjectID: subject.ID, CourseNumber: group.number, Name: group.name}
		if err := s.courses.Insert(ctx, exec, course); err != nil {
			return err
		}
		if len(existing) == 0 {
			outcome.inserted++
		}
	}

	times := make([]models.MeetingTime, len(group.times))
	copy(times, group.times)
	if err := s.courses.ReplaceMeetingTimes(ctx, exec, course.ID, times); err != nil {
		return err
	}
	outcome.meetingTimes += len(times)

	for _, name := range group.sections {
		if err := s.courses.AttachSection(ctx, exec, course.ID, sectionIDs[name]); err != nil {
			return err
		}
	}
	return nil
}

func meetingTimeFromCatalog(raw dto.CatalogMeetingTime) models.MeetingTime {
	var mt models.MeetingTime
	if raw.Days != nil && *raw.Days != "" {
		days := *raw.Days
		mt.MeetDays = &days
	}
	if raw.BeginTime != nil && *raw.BeginTime != "" {
		start := formatClock(*raw.BeginTime)
		mt.StartTime = &start
	}
	if raw.EndTime != nil && *raw.EndTime != "" {
		end := formatClock(*raw.EndTime)
		mt.EndTime = &end
	}
	return mt
}

// formatClock turns catalog HHMM values into HH:MM.
func formatClock(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, ":") {
		return raw
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return raw
		}
	}
	switch len(raw) {
	case 3:
		raw = "0" + raw
	case 4:
	default:
		return raw
	}
	return raw[:2] + ":" + raw[2:]
}

func extOf(tx *sqlx.Tx) sqlx.ExtContext {
	if tx == nil {
		return nil
	}
	return tx
}

func containsValue(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
