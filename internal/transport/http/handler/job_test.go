package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/transport/http/handler"
	"github.com/hydrajobs/hydra/internal/transport/http/middleware"
	"github.com/hydrajobs/hydra/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeJobUsecase implements the unexported jobUsecaser interface via
// method matching.
type fakeJobUsecase struct {
	create        func(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error)
	createAdhoc   func(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error)
	update        func(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error)
	runNow        func(ctx context.Context, scope usecase.Scope, jobID string) (*domain.JobDefinition, error)
	get           func(ctx context.Context, scope usecase.Scope, jobID string) (*domain.JobDefinition, error)
	list          func(ctx context.Context, scope usecase.Scope, limit int) ([]*domain.JobDefinition, error)
	runs          func(ctx context.Context, scope usecase.Scope, jobID string, limit int) ([]*domain.JobRun, error)
	history       func(ctx context.Context, scope usecase.Scope, limit int) ([]*domain.JobRun, error)
	queueOverview func(ctx context.Context, scope usecase.Scope) (*usecase.QueueOverview, error)
}

func (f *fakeJobUsecase) Create(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error) {
	return f.create(ctx, scope, def)
}

func (f *fakeJobUsecase) CreateAdhoc(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error) {
	return f.createAdhoc(ctx, scope, def)
}

func (f *fakeJobUsecase) Update(ctx context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error) {
	return f.update(ctx, scope, def)
}

func (f *fakeJobUsecase) RunNow(ctx context.Context, scope usecase.Scope, jobID string) (*domain.JobDefinition, error) {
	return f.runNow(ctx, scope, jobID)
}

func (f *fakeJobUsecase) Get(ctx context.Context, scope usecase.Scope, jobID string) (*domain.JobDefinition, error) {
	return f.get(ctx, scope, jobID)
}

func (f *fakeJobUsecase) List(ctx context.Context, scope usecase.Scope, limit int) ([]*domain.JobDefinition, error) {
	return f.list(ctx, scope, limit)
}

func (f *fakeJobUsecase) Runs(ctx context.Context, scope usecase.Scope, jobID string, limit int) ([]*domain.JobRun, error) {
	return f.runs(ctx, scope, jobID, limit)
}

func (f *fakeJobUsecase) History(ctx context.Context, scope usecase.Scope, limit int) ([]*domain.JobRun, error) {
	return f.history(ctx, scope, limit)
}

func (f *fakeJobUsecase) QueueOverview(ctx context.Context, scope usecase.Scope) (*usecase.QueueOverview, error) {
	return f.queueOverview(ctx, scope)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// asAcme stands in for the auth middleware.
func asAcme(c *gin.Context) {
	c.Set(middleware.CtxDomain, "acme")
	c.Set(middleware.CtxIsAdmin, false)
}

func newJobEngine(uc *fakeJobUsecase) *gin.Engine {
	h := handler.NewJobHandler(uc, testLogger())

	r := gin.New()
	r.Use(asAcme)
	r.POST("/jobs/", h.Create)
	r.GET("/jobs/", h.List)
	r.GET("/jobs/:id", h.GetByID)
	r.PUT("/jobs/:id", h.Update)
	r.POST("/jobs/validate", h.Validate)
	r.POST("/jobs/:id/run", h.RunNow)
	r.GET("/jobs/:id/runs", h.Runs)
	r.GET("/history", h.History)
	r.GET("/queue/overview", h.QueueOverview)
	return r
}

const minimalJobBody = `{
	"name": "nightly-report",
	"executor": {"type": "shell", "script": "echo hello"},
	"schedule": {"mode": "immediate", "enabled": true}
}`

// ---- Create ----

func TestCreateJob_PassesScopeAndReturns201(t *testing.T) {
	var gotScope usecase.Scope
	uc := &fakeJobUsecase{
		create: func(_ context.Context, scope usecase.Scope, def domain.JobDefinition) (*domain.JobDefinition, error) {
			gotScope = scope
			def.ID = "job-1"
			def.Domain = scope.Domain
			return &def, nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/", strings.NewReader(minimalJobBody))
	req.Header.Set("Content-Type", "application/json")
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	if gotScope.Domain != "acme" || gotScope.Admin {
		t.Errorf("scope = %+v, want acme non-admin", gotScope)
	}

	var resp struct {
		ID     string `json:"id"`
		Domain string `json:"domain"`
		Name   string `json:"name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID != "job-1" || resp.Domain != "acme" || resp.Name != "nightly-report" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateJob_InvalidJSON_Returns400(t *testing.T) {
	uc := &fakeJobUsecase{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/", strings.NewReader(`{bad json}`))
	req.Header.Set("Content-Type", "application/json")
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateJob_ValidationErrors_Return400WithFields(t *testing.T) {
	uc := &fakeJobUsecase{
		create: func(context.Context, usecase.Scope, domain.JobDefinition) (*domain.JobDefinition, error) {
			return nil, domain.ValidationErrors{{Field: "name", Message: "name is required"}}
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/", strings.NewReader(`{"executor":{"type":"shell"}}`))
	req.Header.Set("Content-Type", "application/json")
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp struct {
		Errors []domain.FieldError `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Field != "name" {
		t.Errorf("errors = %+v, want one name error", resp.Errors)
	}
}

// ---- GetByID ----

func TestGetJob_NotFound_Returns404(t *testing.T) {
	uc := &fakeJobUsecase{
		get: func(context.Context, usecase.Scope, string) (*domain.JobDefinition, error) {
			return nil, domain.ErrJobNotFound
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/ghost", nil)
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetJob_UsecaseFailure_Returns500(t *testing.T) {
	uc := &fakeJobUsecase{
		get: func(context.Context, usecase.Scope, string) (*domain.JobDefinition, error) {
			return nil, errors.New("pg down")
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---- List ----

func TestListJobs_ReturnsViews(t *testing.T) {
	uc := &fakeJobUsecase{
		list: func(context.Context, usecase.Scope, int) ([]*domain.JobDefinition, error) {
			return []*domain.JobDefinition{
				{ID: "job-1", Domain: "acme", Name: "one"},
				{ID: "job-2", Domain: "acme", Name: "two"},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
		Jobs  []struct {
			ID string `json:"id"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Count != 2 || len(resp.Jobs) != 2 {
		t.Errorf("response = %+v, want two jobs", resp)
	}
}

// ---- Validate ----

func TestValidateEndpoint_ReportsErrorsWithout500(t *testing.T) {
	uc := &fakeJobUsecase{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/validate",
		strings.NewReader(`{"executor":{"type":"shell"},"schedule":{"mode":"immediate"}}`))
	req.Header.Set("Content-Type", "application/json")
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Valid  bool                `json:"valid"`
		Errors []domain.FieldError `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Valid {
		t.Error("valid = true, want false for missing name and script")
	}
	fields := make(map[string]bool)
	for _, fe := range resp.Errors {
		fields[fe.Field] = true
	}
	if !fields["name"] || !fields["executor.script"] {
		t.Errorf("errors = %+v, want name and executor.script", resp.Errors)
	}
}

func TestValidateEndpoint_ValidBody(t *testing.T) {
	uc := &fakeJobUsecase{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/validate", strings.NewReader(minimalJobBody))
	req.Header.Set("Content-Type", "application/json")
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Valid      bool `json:"valid"`
		Definition struct {
			User     string `json:"user"`
			Priority int    `json:"priority"`
		} `json:"definition"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("valid = false, body %s", w.Body.String())
	}
	if resp.Definition.User != domain.DefaultUser || resp.Definition.Priority != domain.DefaultPriority {
		t.Errorf("normalized definition = %+v, want defaults applied", resp.Definition)
	}
}

// ---- RunNow ----

func TestRunNow_ReturnsEnqueued(t *testing.T) {
	uc := &fakeJobUsecase{
		runNow: func(_ context.Context, _ usecase.Scope, jobID string) (*domain.JobDefinition, error) {
			return &domain.JobDefinition{ID: jobID, Priority: 7}, nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/job-1/run", nil)
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Enqueued bool   `json:"enqueued"`
		JobID    string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Enqueued || resp.JobID != "job-1" {
		t.Errorf("response = %+v", resp)
	}
}

// ---- History ----

func TestHistory_TruncatesOutputTails(t *testing.T) {
	long := strings.Repeat("x", 5000)
	uc := &fakeJobUsecase{
		history: func(_ context.Context, _ usecase.Scope, limit int) ([]*domain.JobRun, error) {
			if limit != 50 {
				t.Errorf("limit = %d, want default 50", limit)
			}
			return []*domain.JobRun{{ID: "run-1", Domain: "acme", Stdout: long}}, nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Runs []struct {
			Stdout string `json:"stdout"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Runs) != 1 || len(resp.Runs[0].Stdout) != 2000 {
		t.Errorf("stdout length = %d, want 2000 tail", len(resp.Runs[0].Stdout))
	}
}

// ---- Queue overview ----

func TestQueueOverview_ReturnsPendingAndSchedules(t *testing.T) {
	uc := &fakeJobUsecase{
		queueOverview: func(context.Context, usecase.Scope) (*usecase.QueueOverview, error) {
			return &usecase.QueueOverview{
				Pending:   []usecase.PendingJob{{JobID: "job-1", Domain: "acme", Priority: 9, Name: "backup"}},
				Schedules: []*domain.JobDefinition{{ID: "job-2", Domain: "acme"}},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/queue/overview", nil)
	newJobEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Pending []struct {
			JobID string `json:"job_id"`
		} `json:"pending"`
		Schedules []struct {
			ID string `json:"id"`
		} `json:"schedules"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Pending) != 1 || resp.Pending[0].JobID != "job-1" {
		t.Errorf("pending = %+v", resp.Pending)
	}
	if len(resp.Schedules) != 1 || resp.Schedules[0].ID != "job-2" {
		t.Errorf("schedules = %+v", resp.Schedules)
	}
}
