package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
	"github.com/noah-isme/gtcollab-api/pkg/jobs"
)

type catalogStub struct {
	mu           sync.Mutex
	terms        []dto.CatalogTerm
	subjects     []dto.CatalogSubject
	courses      map[string][]dto.CatalogCourse
	termsErr     error
	subjectsErr  error
	courseErrs   map[string]error
	subjectCalls int
}

func (c *catalogStub) ListTerms(ctx context.Context) ([]dto.CatalogTerm, error) {
	return c.terms, c.termsErr
}

func (c *catalogStub) ListSubjects(ctx context.Context, termCode string) ([]dto.CatalogSubject, error) {
	c.mu.Lock()
	c.subjectCalls++
	c.mu.Unlock()
	return c.subjects, c.subjectsErr
}

func (c *catalogStub) ListCourses(ctx context.Context, termCode, subjectCode string) ([]dto.CatalogCourse, error) {
	if err := c.courseErrs[subjectCode]; err != nil {
		return nil, err
	}
	return c.courses[subjectCode], nil
}

// memCatalogStore implements every repository the sync engine needs.
type memCatalogStore struct {
	mu             sync.Mutex
	seq            int
	terms          []*models.Term
	subjects       []*models.Subject
	courses        []*models.Course
	meetingTimes   map[string][]models.MeetingTime
	sections       map[string]string
	courseSections map[string][]string
	// groups maps a study group id to its course, cascading like the FK.
	groups       map[string]string
	sectionCalls []string
	sectionsInTx int
}

type inSubjectTx struct{}

func newMemCatalogStore() *memCatalogStore {
	return &memCatalogStore{
		meetingTimes:   map[string][]models.MeetingTime{},
		sections:       map[string]string{},
		courseSections: map[string][]string{},
		groups:         map[string]string{},
	}
}

func (m *memCatalogStore) nextID(prefix string) string {
	m.seq++
	return prefix + "-" + strconv.Itoa(m.seq)
}

func (m *memCatalogStore) FindCurrent(ctx context.Context, today time.Time, window time.Duration) (*models.Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.terms {
		if t.IsCurrent(today, window) {
			clone := *t
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memCatalogStore) UpsertByCode(ctx context.Context, exec sqlx.ExtContext, term *models.Term) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.terms {
		if t.Code == term.Code {
			t.Name, t.StartDate, t.EndDate = term.Name, term.StartDate, term.EndDate
			term.ID, term.SubjectsLoaded = t.ID, t.SubjectsLoaded
			return false, nil
		}
	}
	term.ID = m.nextID("term")
	clone := *term
	m.terms = append(m.terms, &clone)
	return true, nil
}

func (m *memCatalogStore) MarkSubjectsLoaded(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.terms {
		if t.ID == id {
			t.SubjectsLoaded = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memCatalogStore) InsertAll(ctx context.Context, exec sqlx.ExtContext, subjects []models.Subject) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, s := range subjects {
		if m.findSubjectLocked(s.TermID, s.Code) != nil {
			continue
		}
		s.ID = m.nextID("subject")
		clone := s
		m.subjects = append(m.subjects, &clone)
		inserted++
	}
	return inserted, nil
}

func (m *memCatalogStore) findSubjectLocked(termID, code string) *models.Subject {
	for _, s := range m.subjects {
		if s.TermID == termID && s.Code == code {
			return s
		}
	}
	return nil
}

func (m *memCatalogStore) ListByTerm(ctx context.Context, termID string) ([]models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subject
	for _, s := range m.subjects {
		if s.TermID == termID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memCatalogStore) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return nil
}

func (m *memCatalogStore) MarkCoursesLoaded(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects {
		if s.ID == id {
			s.CoursesLoaded = true
		}
	}
	return nil
}

func (m *memCatalogStore) MarkAllCancelled(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		c.IsCancelled = true
	}
	return int64(len(m.courses)), nil
}

func (m *memCatalogStore) FindByNaturalKey(ctx context.Context, exec sqlx.ExtContext, subjectID, courseNumber string) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Course
	for _, c := range m.courses {
		if c.SubjectID == subjectID && c.CourseNumber == courseNumber {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memCatalogStore) Insert(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	course.ID = m.nextID("course")
	clone := *course
	m.courses = append(m.courses, &clone)
	return nil
}

func (m *memCatalogStore) Reaffirm(ctx context.Context, exec sqlx.ExtContext, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.ID == id {
			c.Name, c.IsCancelled = name, false
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memCatalogStore) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.courses[:0]
	for _, c := range m.courses {
		if !containsValue(ids, c.ID) {
			kept = append(kept, c)
		}
	}
	m.courses = kept
	for _, id := range ids {
		delete(m.meetingTimes, id)
		delete(m.courseSections, id)
	}
	for groupID, courseID := range m.groups {
		if containsValue(ids, courseID) {
			delete(m.groups, groupID)
		}
	}
	return nil
}

func (m *memCatalogStore) ReplaceMeetingTimes(ctx context.Context, exec sqlx.ExtContext, courseID string, times []models.MeetingTime) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetingTimes[courseID] = times
	return nil
}

func (m *memCatalogStore) AttachSection(ctx context.Context, exec sqlx.ExtContext, courseID, sectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !containsValue(m.courseSections[courseID], sectionID) {
		m.courseSections[courseID] = append(m.courseSections[courseID], sectionID)
	}
	return nil
}

func (m *memCatalogStore) GetOrCreate(ctx context.Context, exec sqlx.ExtContext, name string) (*models.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sectionCalls = append(m.sectionCalls, name)
	if ctx.Value(inSubjectTx{}) != nil {
		m.sectionsInTx++
	}
	id, ok := m.sections[name]
	if !ok {
		id = m.nextID("section")
		m.sections[name] = id
	}
	return &models.Section{ID: id, Name: name}, nil
}

func (m *memCatalogStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return fn(context.WithValue(ctx, inSubjectTx{}, true), nil)
}

func (m *memCatalogStore) courseID(subjectCode, courseNumber string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		for _, s := range m.subjects {
			if s.ID == c.SubjectID && s.Code == subjectCode && c.CourseNumber == courseNumber {
				return c.ID
			}
		}
	}
	return ""
}

func (m *memCatalogStore) activeCourses(subjectCode string) []models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Course
	for _, c := range m.courses {
		for _, s := range m.subjects {
			if s.ID == c.SubjectID && s.Code == subjectCode && !c.IsCancelled {
				out = append(out, *c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseNumber < out[j].CourseNumber })
	return out
}

func strRef(s string) *string { return &s }

var syncToday = time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)

func defaultCatalog() *catalogStub {
	return &catalogStub{
		terms: []dto.CatalogTerm{
			{TermCode: "202605", Description: "Summer 2026", Type: "3", StartDate: "2026-05-18", EndDate: "2026-08-01"},
			{TermCode: "202602", Description: "Spring 2026", Type: "2", StartDate: "2026-01-12", EndDate: "2026-05-07"},
		},
		subjects: []dto.CatalogSubject{
			{SubjectCode: "CS", Description: "Computer Science"},
			{SubjectCode: "MATH", Description: "Mathematics"},
		},
		courses: map[string][]dto.CatalogCourse{
			"CS": {
				{CourseNumber: "1331", CourseTitle: "Intro to OOP", SectionNumber: "A", MeetingTimes: []dto.CatalogMeetingTime{
					{Days: strRef("MW"), BeginTime: strRef("0905"), EndTime: strRef("0955")},
				}},
				{CourseNumber: "1331", CourseTitle: "Intro to OOP", SectionNumber: "B", MeetingTimes: []dto.CatalogMeetingTime{
					{Days: strRef("TR"), BeginTime: strRef("1330"), EndTime: strRef("1445")},
				}},
				{CourseNumber: "1332", CourseTitle: "Data Structures", SectionNumber: "A", MeetingTimes: []dto.CatalogMeetingTime{
					{},
				}},
			},
			"MATH": {
				{CourseNumber: "1554", CourseTitle: "Linear Algebra", SectionNumber: "C", MeetingTimes: []dto.CatalogMeetingTime{
					{Days: strRef("F")},
				}},
			},
		},
	}
}

func newSyncFixture(t *testing.T, source *catalogStub, store *memCatalogStore) (*CatalogSyncService, *LoadStateTracker) {
	t.Helper()
	tracker := NewLoadStateTracker(nil, 0, nil)
	svc := NewCatalogSyncService(source, store, store, store, store, store, tracker, CatalogSyncConfig{
		TermType:      "2",
		PreTermWindow: 14 * 24 * time.Hour,
		Concurrency:   2,
	}, WithSyncClock(func() time.Time { return syncToday }))
	return svc, tracker
}

func loadedState() models.LoadState {
	return models.LoadState{
		TermStatus:     models.LoadStatusLoaded,
		SubjectsStatus: models.LoadStatusLoaded,
		CoursesStatus:  models.LoadStatusLoaded,
	}
}

func TestCatalogSyncFromEmptyStore(t *testing.T) {
	store := newMemCatalogStore()
	svc, tracker := newSyncFixture(t, defaultCatalog(), store)

	report, err := svc.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "202602", report.TermCode)
	assert.True(t, report.TermCreated)
	assert.Equal(t, 2, report.SubjectsInserted)
	assert.Equal(t, 2, report.SubjectsSynced)
	assert.Equal(t, 3, report.CoursesInserted)
	assert.Equal(t, 0, report.CoursesUpdated)
	assert.Empty(t, report.FailedSubjects)
	assert.Equal(t, loadedState(), tracker.Snapshot(context.Background()))

	require.Len(t, store.terms, 1)
	assert.True(t, store.terms[0].SubjectsLoaded)
	for _, s := range store.subjects {
		assert.True(t, s.CoursesLoaded, s.Code)
	}

	cs := store.activeCourses("CS")
	require.Len(t, cs, 2)
	intro := cs[0]
	assert.Equal(t, "Intro to OOP", intro.Name)
	assert.Len(t, store.courseSections[intro.ID], 2)
	times := store.meetingTimes[intro.ID]
	require.Len(t, times, 2)
	assert.Equal(t, "09:05", *times[0].StartTime)
	assert.Equal(t, "14:45", *times[1].EndTime)

	assert.Empty(t, store.meetingTimes[cs[1].ID])

	math := store.activeCourses("MATH")
	require.Len(t, math, 1)
	mathTimes := store.meetingTimes[math[0].ID]
	require.Len(t, mathTimes, 1)
	assert.Equal(t, "F", *mathTimes[0].MeetDays)
	assert.Nil(t, mathTimes[0].StartTime)
}

func TestCatalogSyncIsIdempotent(t *testing.T) {
	store := newMemCatalogStore()
	source := defaultCatalog()
	svc, _ := newSyncFixture(t, source, store)

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)
	report, err := svc.Sync(context.Background())
	require.NoError(t, err)

	assert.False(t, report.TermCreated)
	assert.Equal(t, 0, report.SubjectsInserted)
	assert.Equal(t, 0, report.CoursesInserted)
	assert.Equal(t, 3, report.CoursesUpdated)
	assert.Equal(t, int64(3), report.CoursesCancelled)
	assert.Equal(t, 1, source.subjectCalls)
	assert.Len(t, store.terms, 1)
	assert.Len(t, store.subjects, 2)
	assert.Len(t, store.courses, 3)
	assert.Len(t, store.sections, 3)
}

func TestCatalogSyncSoftDeletesMissingCourses(t *testing.T) {
	store := newMemCatalogStore()
	source := defaultCatalog()
	svc, _ := newSyncFixture(t, source, store)

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	dataStructures := store.courseID("CS", "1332")
	require.NotEmpty(t, dataStructures)
	store.groups["group-1"] = dataStructures

	source.courses["CS"] = source.courses["CS"][:2]
	_, err = svc.Sync(context.Background())
	require.NoError(t, err)

	assert.Len(t, store.courses, 3)
	cs := store.activeCourses("CS")
	require.Len(t, cs, 1)
	assert.Equal(t, "1331", cs[0].CourseNumber)
	for _, c := range store.courses {
		if c.CourseNumber == "1332" {
			assert.Equal(t, dataStructures, c.ID)
			assert.True(t, c.IsCancelled)
		}
	}
	assert.Equal(t, dataStructures, store.groups["group-1"], "groups of a cancelled course are kept")
}

func TestCatalogSyncResolvesSectionsOutsideSubjectTransaction(t *testing.T) {
	store := newMemCatalogStore()
	source := defaultCatalog()
	source.courses["CS"] = []dto.CatalogCourse{
		{CourseNumber: "1332", CourseTitle: "Data Structures", SectionNumber: "B"},
		{CourseNumber: "1331", CourseTitle: "Intro to OOP", SectionNumber: "C"},
		{CourseNumber: "1331", CourseTitle: "Intro to OOP", SectionNumber: "A"},
		{CourseNumber: "1332", CourseTitle: "Data Structures", SectionNumber: "A"},
	}
	source.subjects = source.subjects[:1]
	svc, _ := newSyncFixture(t, source, store)

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	assert.Zero(t, store.sectionsInTx)
	assert.Equal(t, []string{"A", "B", "C"}, store.sectionCalls)

	oop := store.courseID("CS", "1331")
	assert.ElementsMatch(t, []string{store.sections["C"], store.sections["A"]}, store.courseSections[oop])
}

func TestCatalogSyncRepairsDuplicateCourses(t *testing.T) {
	store := newMemCatalogStore()
	source := defaultCatalog()
	svc, _ := newSyncFixture(t, source, store)

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	var subjectID string
	for _, s := range store.subjects {
		if s.Code == "MATH" {
			subjectID = s.ID
		}
	}
	store.courses = append(store.courses, &models.Course{ID: "dup-1", SubjectID: subjectID, CourseNumber: "1554", Name: "stale"})

	report, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CoursesRepaired)

	math := store.activeCourses("MATH")
	require.Len(t, math, 1)
	assert.Equal(t, "Linear Algebra", math[0].Name)
	assert.NotEqual(t, "dup-1", math[0].ID)
}

func TestCatalogSyncTermFetchFailureResetsState(t *testing.T) {
	source := defaultCatalog()
	source.termsErr = errors.New("catalog returned 503")
	svc, tracker := newSyncFixture(t, source, newMemCatalogStore())

	_, err := svc.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCatalogUnavailable))
	assert.Equal(t, models.NewLoadState(), tracker.Snapshot(context.Background()))
}

func TestCatalogSyncWithoutCurrentTerm(t *testing.T) {
	source := defaultCatalog()
	source.terms = source.terms[:1]
	svc, tracker := newSyncFixture(t, source, newMemCatalogStore())

	_, err := svc.Sync(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrNoCurrentTerm))
	assert.Equal(t, models.NewLoadState(), tracker.Snapshot(context.Background()))
}

func TestCatalogSyncRejectsMalformedTermDates(t *testing.T) {
	source := defaultCatalog()
	source.terms[1].StartDate = "01/12/2026"
	svc, _ := newSyncFixture(t, source, newMemCatalogStore())

	_, err := svc.Sync(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrCatalogUnavailable))
}

func TestCatalogSyncSubjectFetchFailure(t *testing.T) {
	store := newMemCatalogStore()
	source := defaultCatalog()
	source.subjectsErr = errors.New("not json")
	svc, tracker := newSyncFixture(t, source, store)

	_, err := svc.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.NewLoadState(), tracker.Snapshot(context.Background()))
	require.Len(t, store.terms, 1)
	assert.False(t, store.terms[0].SubjectsLoaded)
	assert.Empty(t, store.courses)
}

func TestCatalogSyncSkipsFailingSubject(t *testing.T) {
	store := newMemCatalogStore()
	source := defaultCatalog()
	source.courseErrs = map[string]error{"CS": errors.New("timeout")}
	svc, tracker := newSyncFixture(t, source, store)

	report, err := svc.Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, report.FailedSubjects, 1)
	assert.Equal(t, "CS", report.FailedSubjects[0].SubjectCode)
	assert.Equal(t, 1, report.SubjectsSynced)
	assert.Equal(t, loadedState(), tracker.Snapshot(context.Background()))

	for _, s := range store.subjects {
		assert.Equal(t, s.Code == "MATH", s.CoursesLoaded, s.Code)
	}
	assert.Len(t, store.activeCourses("MATH"), 1)
}

func TestCatalogSyncRefusesConcurrentRun(t *testing.T) {
	svc, tracker := newSyncFixture(t, defaultCatalog(), newMemCatalogStore())
	release, err := tracker.TryBegin(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = svc.Sync(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrSyncInProgress))
}

type enqueuerStub struct {
	jobs []jobs.Job
	err  error
}

func (q *enqueuerStub) TryEnqueue(job jobs.Job) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return "job-" + strconv.Itoa(len(q.jobs)), nil
}

func TestCatalogSyncTriggerAsync(t *testing.T) {
	svc, tracker := newSyncFixture(t, defaultCatalog(), newMemCatalogStore())

	_, err := svc.TriggerAsync(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))

	queue := &enqueuerStub{}
	svc.UseQueue(queue)
	id, err := svc.TriggerAsync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobKindCatalogSync, queue.jobs[0].Kind)

	queue.err = jobs.ErrQueueFull
	_, err = svc.TriggerAsync(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrSyncInProgress))

	queue.err = nil
	release, err := tracker.TryBegin(context.Background())
	require.NoError(t, err)
	defer release()
	_, err = svc.TriggerAsync(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrSyncInProgress))
}

func TestCatalogSyncHandleJob(t *testing.T) {
	store := newMemCatalogStore()
	svc, tracker := newSyncFixture(t, defaultCatalog(), store)

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "j1", Kind: JobKindCatalogSync}))
	assert.Len(t, store.courses, 3)

	release, err := tracker.TryBegin(context.Background())
	require.NoError(t, err)
	defer release()
	assert.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "j2", Kind: JobKindCatalogSync}))
}

func TestFormatClock(t *testing.T) {
	cases := map[string]string{
		"0905":  "09:05",
		"1330":  "13:30",
		"930":   "09:30",
		"09:05": "09:05",
		"TBA":   "TBA",
		"12345": "12345",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatClock(in), in)
	}
}
