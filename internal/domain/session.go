package domain

// SessionStatus is the upstream-reported progress of an assessment session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionComplete   SessionStatus = "complete"
)

// SessionState is the controller's view of where a session sits in its lifecycle.
type SessionState int

const (
	StateNew SessionState = iota
	StateInProgress
	StateComplete
)

func (s SessionState) String() string {
	switch s {
	case StateInProgress:
		return "IN_PROGRESS"
	case StateComplete:
		return "COMPLETE"
	default:
		return "NEW"
	}
}

// Option is one selectable answer attached to a question.
type Option struct {
	Key  string `json:"key,omitempty"`
	Text string `json:"text"`
}

// Question is the next prompt to present while a session is in progress.
type Question struct {
	ID      string   `json:"id,omitempty"`
	Text    string   `json:"text"`
	Options []Option `json:"options,omitempty"`
	Target  string   `json:"target,omitempty"`
}

// Scores are raw per-modality tallies reported by the orchestration service.
type Scores struct {
	V float64 `json:"v"`
	A float64 `json:"a"`
	R float64 `json:"r"`
	K float64 `json:"k"`
}

// Total returns the sum of all four tallies.
func (s Scores) Total() float64 {
	return s.V + s.A + s.R + s.K
}

// Result is the final report of a completed session.
type Result struct {
	Scores          Scores   `json:"scores"`
	Primary         string   `json:"primary"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// Session is one assessment attempt as seen through the gateway.
type Session struct {
	SessionID       string
	StudentID       string
	ParentID        string
	GradeBand       GradeBand
	Status          SessionStatus
	PendingQuestion *Question
	Result          *Result
}

// State derives the lifecycle state. A session without an id has not started.
func (s *Session) State() SessionState {
	switch {
	case s == nil || s.SessionID == "":
		return StateNew
	case s.Status == SessionComplete:
		return StateComplete
	default:
		return StateInProgress
	}
}
