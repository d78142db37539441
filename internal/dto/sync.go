package dto

import (
	"time"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

// SubjectFailure names a subject whose course fetch or write-back failed during a run.
type SubjectFailure struct {
	SubjectCode string `json:"subject_code"`
	Error       string `json:"error"`
}

// SyncReport summarises one catalog sync run.
type SyncReport struct {
	RunID            string           `json:"run_id"`
	TermCode         string           `json:"term_code"`
	TermName         string           `json:"term_name"`
	TermCreated      bool             `json:"term_created"`
	SubjectsInserted int              `json:"subjects_inserted"`
	SubjectsSynced   int              `json:"subjects_synced"`
	CoursesInserted  int              `json:"courses_inserted"`
	CoursesUpdated   int              `json:"courses_updated"`
	CoursesRepaired  int              `json:"courses_repaired"`
	CoursesCancelled int64            `json:"courses_cancelled"`
	MeetingTimes     int              `json:"meeting_times"`
	FailedSubjects   []SubjectFailure `json:"failed_subjects"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// SyncAccepted acknowledges an asynchronous sync trigger.
type SyncAccepted struct {
	JobID string `json:"job_id"`
}

// TermProgress carries the current term name.
type TermProgress struct {
	CurrentTerm *string `json:"current_term"`
}

// SubjectsProgress lists subject codes loaded so far.
type SubjectsProgress struct {
	Subjects []string `json:"subjects"`
}

// CourseCounts splits per-subject course counts into processed and pending subjects.
type CourseCounts struct {
	Done map[string]int `json:"done"`
	Todo map[string]int `json:"todo"`
}

// CoursesProgress wraps CourseCounts.
type CoursesProgress struct {
	Courses CourseCounts `json:"courses"`
}

// SyncProgress is the catalog status payload.
type SyncProgress struct {
	State            models.LoadState `json:"state"`
	TermProgress     TermProgress     `json:"term_progress"`
	SubjectsProgress SubjectsProgress `json:"subjects_progress"`
	CoursesProgress  CoursesProgress  `json:"courses_progress"`
}
