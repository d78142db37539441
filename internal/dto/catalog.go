package dto

// CatalogTerm is a term as listed by the course catalog. Dates are YYYY-MM-DD.
type CatalogTerm struct {
	TermCode    string `json:"term_code"`
	Description string `json:"description"`
	Type        string `json:"type"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

// CatalogSubject is a subject listed for a term.
type CatalogSubject struct {
	SubjectCode string `json:"subject_code"`
	Description string `json:"description"`
}

// CatalogMeetingTime is a raw meeting slot. Times are HHMM and every field is optional.
type CatalogMeetingTime struct {
	Days      *string `json:"days"`
	BeginTime *string `json:"begin_time"`
	EndTime   *string `json:"end_time"`
}

// HasAny reports whether at least one field is present.
func (m CatalogMeetingTime) HasAny() bool {
	return present(m.Days) || present(m.BeginTime) || present(m.EndTime)
}

func present(s *string) bool {
	return s != nil && *s != ""
}

// CatalogCourse is one class listed for (term, subject).
type CatalogCourse struct {
	CourseTitle   string               `json:"course_title"`
	CourseNumber  string               `json:"course_number"`
	SectionNumber string               `json:"section_number"`
	MeetingTimes  []CatalogMeetingTime `json:"meeting_times"`
}
