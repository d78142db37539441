package models

// LoadStatus is the progress of one ingestion stage. Failure reverts to NOT_LOADED.
type LoadStatus string

const (
	LoadStatusNotLoaded LoadStatus = "NOT_LOADED"
	LoadStatusLoading   LoadStatus = "LOADING"
	LoadStatusLoaded    LoadStatus = "LOADED"
)

// LoadStage names one of the three ingestion stages.
type LoadStage string

const (
	StageTerm     LoadStage = "term"
	StageSubjects LoadStage = "subjects"
	StageCourses  LoadStage = "courses"
)

// LoadState is a snapshot of the three stage slots.
type LoadState struct {
	TermStatus     LoadStatus `json:"term_status"`
	SubjectsStatus LoadStatus `json:"subjects_status"`
	CoursesStatus  LoadStatus `json:"courses_status"`
}

// NewLoadState returns a state with every slot NOT_LOADED.
func NewLoadState() LoadState {
	return LoadState{
		TermStatus:     LoadStatusNotLoaded,
		SubjectsStatus: LoadStatusNotLoaded,
		CoursesStatus:  LoadStatusNotLoaded,
	}
}

// AnyLoading reports whether a run currently holds the state.
func (s LoadState) AnyLoading() bool {
	return s.TermStatus == LoadStatusLoading || s.SubjectsStatus == LoadStatusLoading || s.CoursesStatus == LoadStatusLoading
}

// Get returns the status of stage.
func (s LoadState) Get(stage LoadStage) LoadStatus {
	switch stage {
	case StageTerm:
		return s.TermStatus
	case StageSubjects:
		return s.SubjectsStatus
	case StageCourses:
		return s.CoursesStatus
	}
	return ""
}

// With returns a copy of s with stage set to status.
func (s LoadState) With(stage LoadStage, status LoadStatus) LoadState {
	switch stage {
	case StageTerm:
		s.TermStatus = status
	case StageSubjects:
		s.SubjectsStatus = status
	case StageCourses:
		s.CoursesStatus = status
	}
	return s
}
