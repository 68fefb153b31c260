package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/vark-gateway/internal/api"
	"github.com/ashureev/vark-gateway/internal/identity"
)

const maxRequestBytes = 1 << 20

// Advancer is the controller surface the transports need.
type Advancer interface {
	Advance(ctx context.Context, callerID string, req AdvanceRequest) Outcome
}

// Handler exposes the controller over HTTP.
type Handler struct {
	ctrl   Advancer
	logger *slog.Logger
}

// NewHandler creates a new assessment HTTP handler.
func NewHandler(ctrl Advancer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ctrl: ctrl, logger: logger}
}

// Chat handles POST /api/assessment/chat. Requests without a mode run the questionnaire.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ModeVark)
}

// Assess handles POST /api/learning-style/assess. Requests without a mode are summarized.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ModeSummary)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, defaultMode Mode) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeOutcome(w, fail(http.StatusRequestEntityTooLarge, CodeInvalidRequest, "Request body too large"))
			return
		}
		writeOutcome(w, fail(http.StatusBadRequest, CodeInvalidRequest, "Invalid request body"))
		return
	}
	if req.Mode == "" {
		req.Mode = defaultMode
	}

	out := h.ctrl.Advance(r.Context(), identity.UserIDFromContext(r.Context()), req)
	if out.Status >= http.StatusInternalServerError {
		h.logger.Warn("assessment request failed",
			"status", out.Status,
			"code", out.Body.Error.Code,
			"student_id", req.StudentID,
		)
	}
	writeOutcome(w, out)
}

func writeOutcome(w http.ResponseWriter, out Outcome) {
	api.JSON(w, out.Status, out.Body)
}
