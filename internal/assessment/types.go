// Package assessment drives a student's learning-style assessment and
// gates what gets written to the student record.
package assessment

import (
	"net/http"

	"github.com/ashureev/vark-gateway/internal/domain"
)

// Mode selects how a request is assessed.
type Mode string

const (
	// ModeVark runs the multi-turn questionnaire through the orchestration service.
	ModeVark Mode = "vark"
	// ModeSummary infers a style from free-form conversation via the provider.
	ModeSummary Mode = "summary"
)

// Valid reports whether m is empty or a known mode.
func (m Mode) Valid() bool {
	return m == "" || m == ModeVark || m == ModeSummary
}

// Error codes produced by the controller itself. Gateway failures keep
// their own ORCHESTRATION_* codes.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeParentMismatch  = "CLIENT_PARENT_MISMATCH"
	CodeStudentNotFound = "STUDENT_NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeMissingAnswer   = "MISSING_ANSWER"
	CodeInternal        = "INTERNAL_ERROR"
)

// AdvanceRequest is one step of an assessment as sent by a client.
type AdvanceRequest struct {
	ParentID  string           `json:"parentId,omitempty"`
	StudentID string           `json:"studentId"`
	SessionID string           `json:"sessionId,omitempty"`
	GradeBand domain.GradeBand `json:"gradeBand,omitempty"`
	Messages  []domain.Message `json:"messages"`
	Mode      Mode             `json:"mode,omitempty"`
}

// ErrorBody is the error half of every response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Summary is the payload of a summary-mode assessment.
type Summary struct {
	domain.Insight
	Decision        domain.Decision `json:"decision"`
	EvidenceCount   int             `json:"evidenceCount"`
	MissingEvidence []string        `json:"missingEvidence,omitempty"`
	Questions       []string        `json:"questions,omitempty"`
}

// Body is the uniform response shape. Ok responses carry either session
// fields or an embedded Summary; failures carry Error.
type Body struct {
	OK        bool                 `json:"ok"`
	SessionID string               `json:"sessionId,omitempty"`
	Status    domain.SessionStatus `json:"status,omitempty"`
	Question  *domain.Question     `json:"question,omitempty"`
	Result    *domain.Result       `json:"result,omitempty"`
	*Summary
	Error *ErrorBody `json:"error,omitempty"`
}

// Outcome pairs a response body with its HTTP status.
type Outcome struct {
	Status int
	Body   Body
}

func fail(status int, code, message string) Outcome {
	return Outcome{Status: status, Body: Body{Error: &ErrorBody{Code: code, Message: message}}}
}

func internalError() Outcome {
	return fail(http.StatusInternalServerError, CodeInternal, "Internal server error")
}
