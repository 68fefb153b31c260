package domain

import "time"

// AssessmentStatus is the coarse progress marker stored on a student record.
type AssessmentStatus string

const (
	AssessmentNotStarted AssessmentStatus = ""
	AssessmentInProgress AssessmentStatus = "in_progress"
	AssessmentCompleted  AssessmentStatus = "completed"
)

// Student is the persisted record the gateway gates writes on.
type Student struct {
	StudentID          string           `json:"studentId"`
	ParentID           string           `json:"parentId"`
	Name               string           `json:"name,omitempty"`
	GradeBand          GradeBand        `json:"gradeBand,omitempty"`
	HasTakenAssessment bool             `json:"hasTakenAssessment"`
	AssessmentStatus   AssessmentStatus `json:"assessmentStatus,omitempty"`
	LearningStyle      LearningStyle    `json:"learningStyle,omitempty"`
	VarkProfile        *VarkProfile     `json:"vark_profile,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// HasCompletedStyle reports whether a finished assessment already produced a style.
func (s *Student) HasCompletedStyle() bool {
	return s.AssessmentStatus == AssessmentCompleted && s.LearningStyle != ""
}

// VarkScores are modality shares in whole percent.
type VarkScores struct {
	Visual      int `json:"visual"`
	Auditory    int `json:"auditory"`
	ReadWrite   int `json:"read_write"`
	Kinesthetic int `json:"kinesthetic"`
}

// VarkProfile is the structured profile persisted when a session completes.
type VarkProfile struct {
	Model           string        `json:"model"`
	Scores          VarkScores    `json:"scores"`
	Primary         LearningStyle `json:"primary"`
	Secondary       LearningStyle `json:"secondary,omitempty"`
	Confidence      float64       `json:"confidence"`
	Summary         string        `json:"summary"`
	Recommendations []string      `json:"recommendations"`
	AssessedAt      time.Time     `json:"assessedAt"`
	SessionID       string        `json:"sessionId"`
}

// StudentUpdate is a partial update. Nil fields are left untouched.
type StudentUpdate struct {
	HasTakenAssessment *bool
	AssessmentStatus   *AssessmentStatus
	LearningStyle      *LearningStyle
	VarkProfile        *VarkProfile
	UpdatedAt          time.Time
}

// ProgressUpdate marks a student as mid-assessment without touching style fields.
func ProgressUpdate(now time.Time) StudentUpdate {
	status := AssessmentInProgress
	return StudentUpdate{AssessmentStatus: &status, UpdatedAt: now}
}

// CompletionUpdate records a finished assessment. Profile may be nil.
func CompletionUpdate(style LearningStyle, profile *VarkProfile, now time.Time) StudentUpdate {
	taken := true
	status := AssessmentCompleted
	return StudentUpdate{
		HasTakenAssessment: &taken,
		AssessmentStatus:   &status,
		LearningStyle:      &style,
		VarkProfile:        profile,
		UpdatedAt:          now,
	}
}

// TouchesStyle reports whether the update writes any derived learning-style field.
func (u StudentUpdate) TouchesStyle() bool {
	return u.LearningStyle != nil || u.VarkProfile != nil || u.HasTakenAssessment != nil
}

// Fields renders the update in record-store field names, omitting updatedAt.
func (u StudentUpdate) Fields() map[string]any {
	out := make(map[string]any, 4)
	if u.HasTakenAssessment != nil {
		out["hasTakenAssessment"] = *u.HasTakenAssessment
	}
	if u.AssessmentStatus != nil {
		out["assessmentStatus"] = string(*u.AssessmentStatus)
	}
	if u.LearningStyle != nil {
		out["learningStyle"] = string(*u.LearningStyle)
	}
	if u.VarkProfile != nil {
		out["vark_profile"] = u.VarkProfile
	}
	return out
}

// Apply merges the update into s.
func (u StudentUpdate) Apply(s *Student) {
	if u.HasTakenAssessment != nil {
		s.HasTakenAssessment = *u.HasTakenAssessment
	}
	if u.AssessmentStatus != nil {
		s.AssessmentStatus = *u.AssessmentStatus
	}
	if u.LearningStyle != nil {
		s.LearningStyle = *u.LearningStyle
	}
	if u.VarkProfile != nil {
		p := *u.VarkProfile
		s.VarkProfile = &p
	}
	if !u.UpdatedAt.IsZero() {
		s.UpdatedAt = u.UpdatedAt
	}
}
