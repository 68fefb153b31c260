package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/vark-gateway/internal/domain"
	"github.com/ashureev/vark-gateway/internal/orchestration"
	"github.com/ashureev/vark-gateway/internal/provider"
	"github.com/ashureev/vark-gateway/internal/store"
)

const (
	// needsMoreDataConfidenceCap bounds confidence while evidence is thin.
	needsMoreDataConfidenceCap = 0.4
	// keepStyleBelow is the confidence under which a final summary does not
	// replace a style the student already has.
	keepStyleBelow = 0.55

	historyTimeout = 5 * time.Second
)

var errStyleBeforeCompletion = errors.New("learning style write before assessment completed")

// Controller advances assessment sessions on behalf of an authenticated caller.
type Controller struct {
	gateway  orchestration.Gateway
	repo     store.Repository
	provider provider.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewController wires a controller to its collaborators.
func NewController(gateway orchestration.Gateway, repo store.Repository, prov provider.Provider, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		gateway:  gateway,
		repo:     repo,
		provider: prov,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Advance validates and authorizes req, moves the session one step, and
// persists the allowed subset of the outcome. An empty req.Mode means vark.
func (c *Controller) Advance(ctx context.Context, callerID string, req AdvanceRequest) Outcome {
	if msg := validate(req); msg != "" {
		return fail(http.StatusBadRequest, CodeInvalidRequest, msg)
	}
	if callerID == "" {
		return fail(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
	}
	if req.ParentID != "" && req.ParentID != callerID {
		c.logger.Warn("parent mismatch", "caller_id", callerID, "student_id", req.StudentID)
		return fail(http.StatusBadRequest, CodeParentMismatch, "parentId does not match authenticated user")
	}

	student, err := c.repo.GetStudent(ctx, req.StudentID)
	if err != nil {
		c.logger.Error("load student", "student_id", req.StudentID, "error", err)
		return internalError()
	}
	if student == nil {
		return fail(http.StatusNotFound, CodeStudentNotFound, "Student not found")
	}
	if student.ParentID != callerID {
		return fail(http.StatusForbidden, CodeForbidden, "Forbidden")
	}

	if req.SessionID != "" || req.Mode != ModeSummary {
		return c.advanceVark(ctx, callerID, student, req)
	}
	return c.summarize(ctx, callerID, student, req)
}

func validate(req AdvanceRequest) string {
	if strings.TrimSpace(req.StudentID) == "" {
		return "studentId is required"
	}
	if req.GradeBand != "" && !req.GradeBand.Valid() {
		return "gradeBand must be one of K-2, 3-5, 6-8, 9-12"
	}
	if !req.Mode.Valid() {
		return "mode must be vark or summary"
	}
	for _, m := range req.Messages {
		if !m.Role.Valid() {
			return "message role must be system, user or assistant"
		}
		if m.Content == "" {
			return "message content is required"
		}
	}
	return ""
}

func (c *Controller) advanceVark(ctx context.Context, callerID string, student *domain.Student, req AdvanceRequest) Outcome {
	var (
		resp *orchestration.Response
		err  error
	)
	band := req.GradeBand
	if band == "" {
		band = student.GradeBand
	}
	if req.SessionID == "" {
		resp, err = c.gateway.StartSession(ctx, req.StudentID, band)
	} else {
		answer := domain.LatestUserMessage(req.Messages)
		if answer == "" {
			return fail(http.StatusBadRequest, CodeMissingAnswer, "answer is required")
		}
		resp, err = c.gateway.SubmitAnswer(ctx, req.SessionID, answer, req.StudentID)
	}
	if err != nil {
		return c.gatewayFailure(req, err)
	}

	now := c.now()
	session := resp.Session(req.StudentID, callerID, band)
	switch session.State() {
	case domain.StateComplete:
	case domain.StateInProgress:
		if err := c.persist(ctx, req.StudentID, false, domain.ProgressUpdate(now)); err != nil {
			c.logger.Error("mark assessment in progress", "student_id", req.StudentID, "error", err)
			return internalError()
		}
		return Outcome{Status: http.StatusOK, Body: Body{
			OK:        true,
			SessionID: session.SessionID,
			Status:    domain.SessionInProgress,
			Question:  session.PendingQuestion,
		}}
	default:
		c.logger.Error("orchestration returned no session", "student_id", req.StudentID)
		return internalError()
	}

	style := domain.StyleFromCode(session.Result.Primary)
	profile := BuildProfile(session.Result, session.SessionID, now)
	if err := c.persist(ctx, req.StudentID, true, domain.CompletionUpdate(style, profile, now)); err != nil {
		c.logger.Error("record completed assessment", "student_id", req.StudentID, "session_id", resp.SessionID, "error", err)
		return internalError()
	}
	c.logger.Info("assessment complete",
		"student_id", req.StudentID,
		"session_id", resp.SessionID,
		"learning_style", style,
	)

	c.appendHistory(ctx, c.completionRecord(ctx, callerID, req, resp.Result, style, profile, now))

	return Outcome{Status: http.StatusOK, Body: Body{
		OK:        true,
		SessionID: resp.SessionID,
		Status:    domain.SessionComplete,
		Result:    resp.Result,
	}}
}

func (c *Controller) gatewayFailure(req AdvanceRequest, err error) Outcome {
	if f, ok := orchestration.AsFailure(err); ok {
		return Outcome{Status: http.StatusBadGateway, Body: Body{Error: &ErrorBody{
			Code:    f.Code,
			Message: f.Message,
			Details: f.Details,
		}}}
	}
	if errors.Is(err, orchestration.ErrNotConfigured) {
		c.logger.Error("orchestration not configured", "student_id", req.StudentID)
	} else {
		c.logger.Error("orchestration call", "student_id", req.StudentID, "session_id", req.SessionID, "error", err)
	}
	return internalError()
}

// persist writes update to the student record. Derived style fields are
// written only for a final outcome.
func (c *Controller) persist(ctx context.Context, studentID string, final bool, update domain.StudentUpdate) error {
	if !final && update.TouchesStyle() {
		return errStyleBeforeCompletion
	}
	c.logger.Debug("update student", "student_id", studentID, "final", final, "fields", update.Fields())
	if err := c.repo.UpdateStudent(ctx, studentID, update); err != nil {
		return fmt.Errorf("update student %s: %w", studentID, err)
	}
	return nil
}

// completionRecord builds the history entry for a finished questionnaire.
// The provider is consulted only when the upstream summary is empty.
func (c *Controller) completionRecord(ctx context.Context, callerID string, req AdvanceRequest, res *domain.Result, style domain.LearningStyle, profile *domain.VarkProfile, now time.Time) *domain.AssessmentRecord {
	explanation := res.Summary
	if strings.TrimSpace(explanation) == "" && c.provider != nil && len(req.Messages) > 0 {
		insight, err := c.provider.Generate(ctx, req.Messages)
		if err != nil {
			c.logger.Warn("provider explanation unavailable", "student_id", req.StudentID, "error", err)
		} else if insight != nil {
			explanation = insight.Explanation
		}
	}

	return &domain.AssessmentRecord{
		ParentID:  callerID,
		StudentID: req.StudentID,
		Messages:  req.Messages,
		Result: domain.AssessmentResult{
			Insight: domain.Insight{
				LearningStyle: style,
				Confidence:    profile.Confidence,
				Explanation:   explanation,
				NextSteps:     res.Recommendations,
				Model:         ModelVark,
				CreatedAt:     now,
			},
			VarkProfile: profile,
		},
		Model:         ModelVark,
		Decision:      domain.DecisionFinal,
		EvidenceCount: len(req.Messages),
		CreatedAt:     now,
	}
}

func (c *Controller) summarize(ctx context.Context, callerID string, student *domain.Student, req AdvanceRequest) Outcome {
	evidence := CountEvidence(req.Messages)
	decision := decide(evidence)

	now := c.now()
	insight := c.generate(ctx, req)
	insight = provider.Normalize(insight, now)

	summary := &Summary{Insight: *insight, Decision: decision, EvidenceCount: evidence}

	var update *domain.StudentUpdate
	switch decision {
	case domain.DecisionNeedsMoreData:
		summary.Confidence = math.Min(summary.Confidence, needsMoreDataConfidenceCap)
		summary.MissingEvidence = append([]string(nil), missingEvidence...)
		summary.Questions = append([]string(nil), followUpQuestions...)
		if !student.HasCompletedStyle() {
			u := domain.ProgressUpdate(now)
			update = &u
		}
	default:
		if student.HasCompletedStyle() && insight.Confidence < keepStyleBelow {
			summary.LearningStyle = student.LearningStyle
		} else {
			u := domain.CompletionUpdate(summary.LearningStyle, nil, now)
			update = &u
		}
	}

	if update != nil {
		if err := c.persist(ctx, req.StudentID, decision == domain.DecisionFinal, *update); err != nil {
			c.logger.Error("record summary assessment", "student_id", req.StudentID, "error", err)
			return internalError()
		}
	}

	c.appendHistory(ctx, &domain.AssessmentRecord{
		ParentID:      callerID,
		StudentID:     req.StudentID,
		Messages:      req.Messages,
		Result:        domain.AssessmentResult{Insight: summary.Insight},
		Model:         insight.Model,
		Decision:      decision,
		EvidenceCount: evidence,
		CreatedAt:     now,
	})

	return Outcome{Status: http.StatusOK, Body: Body{OK: true, Summary: summary}}
}

// generate asks the provider for an insight and substitutes the safe result
// on any failure.
func (c *Controller) generate(ctx context.Context, req AdvanceRequest) *domain.Insight {
	if c.provider == nil {
		return provider.SafeInsight(provider.ModelUnavailable, c.now())
	}
	insight, err := c.provider.Generate(ctx, req.Messages)
	if err != nil || insight == nil {
		c.logger.Warn("assessment provider failed", "student_id", req.StudentID, "error", err)
		return provider.SafeInsight(provider.ModelUnavailable, c.now())
	}
	return insight
}

// appendHistory writes a history record. Failures are logged and dropped.
func (c *Controller) appendHistory(ctx context.Context, rec *domain.AssessmentRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := c.repo.AddAssessment(ctx, rec); err != nil {
		c.logger.Warn("append assessment history", "student_id", rec.StudentID, "error", err)
	}
}
