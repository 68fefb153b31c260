package domain

import "time"

// Decision says whether a summary-mode assessment had enough evidence.
type Decision string

const (
	DecisionFinal         Decision = "final"
	DecisionNeedsMoreData Decision = "needs_more_data"
)

// Insight is a provider's inference from a transcript.
type Insight struct {
	LearningStyle LearningStyle `json:"learningStyle"`
	Confidence    float64       `json:"confidence"`
	Explanation   string        `json:"explanation"`
	NextSteps     []string      `json:"nextSteps"`
	Model         string        `json:"model"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// AssessmentResult is the stored outcome of one assessment request.
type AssessmentResult struct {
	Insight
	VarkProfile *VarkProfile `json:"vark_profile,omitempty"`
}

// AssessmentRecord is an append-only history entry.
type AssessmentRecord struct {
	ID            string           `json:"id"`
	ParentID      string           `json:"parentId"`
	StudentID     string           `json:"studentId"`
	Messages      []Message        `json:"messages"`
	Result        AssessmentResult `json:"result"`
	Model         string           `json:"model"`
	Decision      Decision         `json:"decision"`
	EvidenceCount int              `json:"evidenceCount"`
	CreatedAt     time.Time        `json:"createdAt"`
}
