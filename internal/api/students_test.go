package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/vark-gateway/internal/domain"
	"github.com/ashureev/vark-gateway/internal/identity"
	"github.com/ashureev/vark-gateway/internal/store"
)

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	mu       sync.Mutex
	students map[string]*domain.Student
	history  []*domain.AssessmentRecord
	pingErr  error
}

func newFakeRepo(students ...*domain.Student) *fakeRepo {
	r := &fakeRepo{students: make(map[string]*domain.Student)}
	for _, s := range students {
		r.students[s.StudentID] = s
	}
	return r
}

func (r *fakeRepo) GetStudent(_ context.Context, id string) (*domain.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) UpsertStudent(_ context.Context, s *domain.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.students[s.StudentID]; ok {
		if existing.ParentID != s.ParentID {
			return store.ErrForbidden
		}
		existing.Name = s.Name
		existing.GradeBand = s.GradeBand
		existing.UpdatedAt = s.UpdatedAt
		return nil
	}
	cp := *s
	r.students[s.StudentID] = &cp
	return nil
}

func (r *fakeRepo) UpdateStudent(_ context.Context, id string, u domain.StudentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Apply(s)
	return nil
}

func (r *fakeRepo) AddAssessment(_ context.Context, rec *domain.AssessmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, rec)
	return nil
}

func (r *fakeRepo) ListAssessments(_ context.Context, id string, limit int) ([]*domain.AssessmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AssessmentRecord
	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		if r.history[i].StudentID == id {
			out = append(out, r.history[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) Ping(context.Context) error { return r.pingErr }
func (r *fakeRepo) Close() error               { return nil }

func testHandler(repo store.Repository) *Handler {
	return NewHandler(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func studentRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/students/{studentID}", h.GetStudent)
	r.Put("/api/students/{studentID}", h.PutStudent)
	r.Get("/api/students/{studentID}/assessments", h.ListAssessments)
	return r
}

func do(t *testing.T, h http.Handler, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req = req.WithContext(identity.WithUserID(req.Context(), caller))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetStudentOwnerOnly(t *testing.T) {
	repo := newFakeRepo(&domain.Student{StudentID: "s1", ParentID: "p1", Name: "Ada"})
	h := studentRouter(testHandler(repo))

	tests := []struct {
		name   string
		path   string
		caller string
		want   int
	}{
		{"owner", "/api/students/s1", "p1", http.StatusOK},
		{"other parent", "/api/students/s1", "p2", http.StatusForbidden},
		{"missing", "/api/students/nope", "p1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, tt.caller, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPutStudentCreatesThenRenames(t *testing.T) {
	repo := newFakeRepo()
	h := studentRouter(testHandler(repo))

	rec := do(t, h, http.MethodPut, "/api/students/s1", "p1", `{"name":"Ada","gradeBand":"3-5"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	repo.students["s1"].AssessmentStatus = domain.AssessmentCompleted
	repo.students["s1"].LearningStyle = domain.StyleVisual

	rec = do(t, h, http.MethodPut, "/api/students/s1", "p1", `{"name":"Ada L.","gradeBand":"6-8","learningStyle":"Auditory"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got domain.Student
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "Ada L." || got.GradeBand != domain.GradeBand68 {
		t.Errorf("descriptive fields not updated: %+v", got)
	}
	if got.LearningStyle != domain.StyleVisual || got.AssessmentStatus != domain.AssessmentCompleted {
		t.Errorf("assessment fields changed: %+v", got)
	}
}

func TestPutStudentRejects(t *testing.T) {
	repo := newFakeRepo(&domain.Student{StudentID: "s1", ParentID: "p1", Name: "Ada"})
	h := studentRouter(testHandler(repo))

	tests := []struct {
		name   string
		caller string
		body   string
		want   int
	}{
		{"other parent", "p2", `{"name":"Mine now"}`, http.StatusForbidden},
		{"missing name", "p1", `{"name":"  "}`, http.StatusBadRequest},
		{"bad grade band", "p1", `{"name":"Ada","gradeBand":"college"}`, http.StatusBadRequest},
		{"bad json", "p1", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, "/api/students/s1", tt.caller, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if repo.students["s1"].ParentID != "p1" || repo.students["s1"].Name != "Ada" {
		t.Errorf("student modified: %+v", repo.students["s1"])
	}
}

// claimAfterLookup lets another parent create the student between the
// handler's ownership lookup and its write.
type claimAfterLookup struct {
	*fakeRepo
	once sync.Once
}

func (r *claimAfterLookup) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	st, err := r.fakeRepo.GetStudent(ctx, id)
	r.once.Do(func() {
		r.fakeRepo.students[id] = &domain.Student{
			StudentID:     id,
			ParentID:      "parent-a",
			Name:          "Ada",
			LearningStyle: domain.StyleVisual,
		}
	})
	return st, err
}

func TestPutStudentLosesCreateRace(t *testing.T) {
	repo := &claimAfterLookup{fakeRepo: newFakeRepo()}
	h := studentRouter(testHandler(repo))

	rec := do(t, h, http.MethodPut, "/api/students/s1", "parent-b", `{"name":"Mallory"}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body %s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Visual") || strings.Contains(rec.Body.String(), "parent-a") {
		t.Errorf("response leaked another parent's record: %s", rec.Body.String())
	}
	got := repo.students["s1"]
	if got.ParentID != "parent-a" || got.Name != "Ada" {
		t.Errorf("student modified: %+v", got)
	}
}

func TestListAssessments(t *testing.T) {
	repo := newFakeRepo(&domain.Student{StudentID: "s1", ParentID: "p1"})
	repo.history = []*domain.AssessmentRecord{
		{ID: "a", StudentID: "s1"},
		{ID: "b", StudentID: "other"},
		{ID: "c", StudentID: "s1"},
	}
	h := studentRouter(testHandler(repo))

	rec := do(t, h, http.MethodGet, "/api/students/s1/assessments?limit=5", "p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Assessments []domain.AssessmentRecord `json:"assessments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Assessments) != 2 || got.Assessments[0].ID != "c" || got.Assessments[1].ID != "a" {
		t.Errorf("unexpected history: %+v", got.Assessments)
	}

	if rec := do(t, h, http.MethodGet, "/api/students/s1/assessments?limit=zero", "p1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	repo := newFakeRepo()
	h := testHandler(repo)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d", rec.Code)
	}

	repo.pingErr = errors.New("disk gone")
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}
