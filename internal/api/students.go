package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/vark-gateway/internal/domain"
	"github.com/ashureev/vark-gateway/internal/identity"
	"github.com/ashureev/vark-gateway/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type studentRequest struct {
	Name      string           `json:"name"`
	GradeBand domain.GradeBand `json:"gradeBand"`
}

// ownedStudent loads the student named in the URL and checks the caller owns it.
// It writes the error response and returns nil when access is refused.
func (h *Handler) ownedStudent(w http.ResponseWriter, r *http.Request) *domain.Student {
	callerID := identity.UserIDFromContext(r.Context())
	studentID := chi.URLParam(r, "studentID")

	student, err := h.repo.GetStudent(r.Context(), studentID)
	if err != nil {
		h.logger.Error("load student", "student_id", studentID, "error", err)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return nil
	}
	if student == nil {
		Error(w, http.StatusNotFound, "STUDENT_NOT_FOUND", "Student not found")
		return nil
	}
	if student.ParentID != callerID {
		Error(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
		return nil
	}
	return student
}

// GetStudent handles GET /api/students/{studentID}.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	student := h.ownedStudent(w, r)
	if student == nil {
		return
	}
	JSON(w, http.StatusOK, student)
}

// PutStudent handles PUT /api/students/{studentID}. Callers may create a
// student or change its name and grade band; assessment fields are not writable.
func (h *Handler) PutStudent(w http.ResponseWriter, r *http.Request) {
	callerID := identity.UserIDFromContext(r.Context())
	studentID := chi.URLParam(r, "studentID")

	var req studentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required")
		return
	}
	if req.GradeBand != "" && !req.GradeBand.Valid() {
		Error(w, http.StatusBadRequest, "INVALID_REQUEST", "gradeBand must be one of K-2, 3-5, 6-8, 9-12")
		return
	}

	existing, err := h.repo.GetStudent(r.Context(), studentID)
	if err != nil {
		h.logger.Error("load student", "student_id", studentID, "error", err)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if existing != nil && existing.ParentID != callerID {
		Error(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
		return
	}

	now := time.Now().UTC()
	student := &domain.Student{
		StudentID: studentID,
		ParentID:  callerID,
		Name:      req.Name,
		GradeBand: req.GradeBand,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.UpsertStudent(r.Context(), student); err != nil {
		if errors.Is(err, store.ErrForbidden) {
			h.logger.Warn("student claimed by another parent", "student_id", studentID, "caller_id", callerID)
			Error(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
			return
		}
		h.logger.Error("upsert student", "student_id", studentID, "error", err)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	saved, err := h.repo.GetStudent(r.Context(), studentID)
	if err != nil || saved == nil {
		h.logger.Error("reload student", "student_id", studentID, "error", err)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if saved.ParentID != callerID {
		Error(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
		return
	}

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	JSON(w, status, saved)
}

// ListAssessments handles GET /api/students/{studentID}/assessments.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	student := h.ownedStudent(w, r)
	if student == nil {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.repo.ListAssessments(r.Context(), student.StudentID, limit)
	if err != nil {
		h.logger.Error("list assessments", "student_id", student.StudentID, "error", err)
		Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if records == nil {
		records = []*domain.AssessmentRecord{}
	}
	JSON(w, http.StatusOK, map[string]any{"assessments": records})
}
