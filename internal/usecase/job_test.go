package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/eventbus"
	"github.com/hydrajobs/hydra/internal/repository"
	"github.com/hydrajobs/hydra/internal/usecase"
)

// ---- fakes ----

// Fakes embed the interface they stand in for; calling anything a test
// did not set panics and fails the test loudly.

type fakeJobs struct {
	repository.JobRepository
	create       func(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error)
	update       func(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error)
	getByID      func(ctx context.Context, jobID string) (*domain.JobDefinition, error)
	list         func(ctx context.Context, limit int) ([]*domain.JobDefinition, error)
	listByDomain func(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error)
	upcoming     func(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error)
}

func (f *fakeJobs) Create(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
	return f.create(ctx, job)
}

func (f *fakeJobs) Update(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
	return f.update(ctx, job)
}

func (f *fakeJobs) GetByID(ctx context.Context, jobID string) (*domain.JobDefinition, error) {
	return f.getByID(ctx, jobID)
}

func (f *fakeJobs) List(ctx context.Context, limit int) ([]*domain.JobDefinition, error) {
	return f.list(ctx, limit)
}

func (f *fakeJobs) ListByDomain(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error) {
	return f.listByDomain(ctx, dom, limit)
}

func (f *fakeJobs) UpcomingSchedules(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error) {
	return f.upcoming(ctx, dom, limit)
}

type fakeRuns struct {
	repository.RunRepository
	listByJob    func(ctx context.Context, jobID string, limit int) ([]*domain.JobRun, error)
	listByDomain func(ctx context.Context, dom string, limit int) ([]*domain.JobRun, error)
	listRecent   func(ctx context.Context, limit int) ([]*domain.JobRun, error)
	getByID      func(ctx context.Context, runID string) (*domain.JobRun, error)
}

func (f *fakeRuns) ListByJob(ctx context.Context, jobID string, limit int) ([]*domain.JobRun, error) {
	return f.listByJob(ctx, jobID, limit)
}

func (f *fakeRuns) ListByDomain(ctx context.Context, dom string, limit int) ([]*domain.JobRun, error) {
	return f.listByDomain(ctx, dom, limit)
}

func (f *fakeRuns) ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error) {
	return f.listRecent(ctx, limit)
}

func (f *fakeRuns) GetByID(ctx context.Context, runID string) (*domain.JobRun, error) {
	return f.getByID(ctx, runID)
}

type fakeJobStore struct {
	repository.DomainSet
	repository.Queues
	addDomain      func(ctx context.Context, dom string) error
	domains        func(ctx context.Context) ([]string, error)
	enqueuePending func(ctx context.Context, dom, jobID string, priority int, now time.Time) error
	peekPending    func(ctx context.Context, dom string, limit int64) ([]repository.PendingEntry, error)
}

func (s *fakeJobStore) AddDomain(ctx context.Context, dom string) error {
	if s.addDomain == nil {
		return nil
	}
	return s.addDomain(ctx, dom)
}

func (s *fakeJobStore) Domains(ctx context.Context) ([]string, error) {
	return s.domains(ctx)
}

func (s *fakeJobStore) EnqueuePending(ctx context.Context, dom, jobID string, priority int, now time.Time) error {
	return s.enqueuePending(ctx, dom, jobID, priority, now)
}

func (s *fakeJobStore) PeekPending(ctx context.Context, dom string, limit int64) ([]repository.PendingEntry, error) {
	return s.peekPending(ctx, dom, limit)
}

// ---- helpers ----

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drainEvents(ch <-chan domain.Event) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []domain.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func acmeScope() usecase.Scope { return usecase.Scope{Domain: "acme"} }

// ---- JobUsecase ----

func TestCreate_ImmediateEnabled_PersistsAndEnqueues(t *testing.T) {
	var created *domain.JobDefinition
	var addedDomain, enqueuedJob string
	var enqueuedPriority int

	jobs := &fakeJobs{
		create: func(_ context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
			created = job
			return job, nil
		},
	}
	store := &fakeJobStore{
		addDomain: func(_ context.Context, dom string) error {
			addedDomain = dom
			return nil
		},
		enqueuePending: func(_ context.Context, dom, jobID string, priority int, _ time.Time) error {
			enqueuedJob, enqueuedPriority = jobID, priority
			return nil
		},
	}
	bus := eventbus.New(testLogger())
	_, events := bus.Subscribe()

	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, store, bus)
	def := validDefinition()
	def.Priority = 8

	out, err := u.Create(context.Background(), acmeScope(), def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil || created.Domain != "acme" {
		t.Fatalf("persisted domain = %+v, want acme", created)
	}
	if out.ID == "" {
		t.Error("created job has no id")
	}
	if out.User != domain.DefaultUser {
		t.Errorf("user = %q, want default", out.User)
	}
	if addedDomain != "acme" {
		t.Errorf("domain set got %q, want acme", addedDomain)
	}
	if enqueuedJob != out.ID || enqueuedPriority != 8 {
		t.Errorf("enqueued (%q, %d), want (%q, 8)", enqueuedJob, enqueuedPriority, out.ID)
	}

	types := eventTypes(drainEvents(events))
	if len(types) != 2 || types[0] != domain.EventJobSubmitted || types[1] != domain.EventJobEnqueued {
		t.Errorf("events = %v, want [job_submitted job_enqueued]", types)
	}
}

func TestCreate_CronSchedule_NotEnqueued(t *testing.T) {
	jobs := &fakeJobs{
		create: func(_ context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
			return job, nil
		},
	}
	store := &fakeJobStore{} // enqueuePending unset: a call would panic
	bus := eventbus.New(testLogger())
	_, events := bus.Subscribe()

	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, store, bus)
	def := validDefinition()
	def.Schedule = domain.ScheduleConfig{Mode: domain.ScheduleCron, Cron: "*/5 * * * *", Enabled: true}

	out, err := u.Create(context.Background(), acmeScope(), def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Schedule.NextRunAt == nil {
		t.Error("cron schedule should have next_run_at set")
	}

	types := eventTypes(drainEvents(events))
	if len(types) != 1 || types[0] != domain.EventJobSubmitted {
		t.Errorf("events = %v, want [job_submitted]", types)
	}
}

func TestCreate_InvalidDefinition_NothingPersisted(t *testing.T) {
	u := usecase.NewJobUsecase(&fakeJobs{}, &fakeRuns{}, &fakeJobStore{}, eventbus.New(testLogger()))

	def := validDefinition()
	def.Name = ""

	_, err := u.Create(context.Background(), acmeScope(), def)
	var verrs domain.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 1 || verrs[0].Field != "name" {
		t.Errorf("errors = %v, want one name error", verrs)
	}
}

func TestCreateAdhoc_ForcesOneShotAndEnqueues(t *testing.T) {
	var enqueued bool
	jobs := &fakeJobs{
		create: func(_ context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
			return job, nil
		},
	}
	store := &fakeJobStore{
		enqueuePending: func(context.Context, string, string, int, time.Time) error {
			enqueued = true
			return nil
		},
	}
	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, store, eventbus.New(testLogger()))

	def := validDefinition()
	// Caller-supplied schedules are ignored for adhoc runs.
	def.Schedule = domain.ScheduleConfig{Mode: domain.ScheduleCron, Cron: "bogus", Enabled: true}

	out, err := u.CreateAdhoc(context.Background(), acmeScope(), def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Schedule.Mode != domain.ScheduleImmediate || out.Schedule.Enabled {
		t.Errorf("schedule = %+v, want disabled immediate", out.Schedule)
	}
	if !enqueued {
		t.Error("adhoc job was not enqueued")
	}
}

func TestUpdate_UnchangedSchedule_KeepsNextRun(t *testing.T) {
	nextRun := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	current := validDefinition()
	current.ID = "job-1"
	current.Domain = "acme"
	current.Schedule = domain.ScheduleConfig{
		Mode: domain.ScheduleCron, Cron: "0 3 * * *", Enabled: true, NextRunAt: &nextRun,
	}

	var persisted *domain.JobDefinition
	jobs := &fakeJobs{
		getByID: func(context.Context, string) (*domain.JobDefinition, error) { return &current, nil },
		update: func(_ context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
			persisted = job
			return job, nil
		},
	}
	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, &fakeJobStore{}, eventbus.New(testLogger()))

	edited := current
	edited.Name = "renamed"

	if _, err := u.Update(context.Background(), acmeScope(), edited); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if persisted.Schedule.NextRunAt == nil || !persisted.Schedule.NextRunAt.Equal(nextRun) {
		t.Errorf("next_run_at = %v, want preserved %v", persisted.Schedule.NextRunAt, nextRun)
	}
}

func TestUpdate_ChangedSchedule_Reinitializes(t *testing.T) {
	oldNext := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	current := validDefinition()
	current.ID = "job-1"
	current.Domain = "acme"
	current.Schedule = domain.ScheduleConfig{
		Mode: domain.ScheduleCron, Cron: "0 3 * * *", Enabled: true, NextRunAt: &oldNext,
	}

	var persisted *domain.JobDefinition
	jobs := &fakeJobs{
		getByID: func(context.Context, string) (*domain.JobDefinition, error) { return &current, nil },
		update: func(_ context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
			persisted = job
			return job, nil
		},
	}
	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, &fakeJobStore{}, eventbus.New(testLogger()))

	edited := current
	edited.Schedule.Cron = "0 6 * * *"

	if _, err := u.Update(context.Background(), acmeScope(), edited); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := persisted.Schedule.NextRunAt
	if got == nil || got.Equal(oldNext) {
		t.Errorf("next_run_at = %v, want recomputed after cron change", got)
	}
}

func TestUpdate_CrossDomain_NotFound(t *testing.T) {
	current := validDefinition()
	current.ID = "job-1"
	current.Domain = "other"

	jobs := &fakeJobs{
		getByID: func(context.Context, string) (*domain.JobDefinition, error) { return &current, nil },
	}
	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, &fakeJobStore{}, eventbus.New(testLogger()))

	edited := current
	if _, err := u.Update(context.Background(), acmeScope(), edited); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestRunNow_EnqueuesAtJobPriority(t *testing.T) {
	job := validDefinition()
	job.ID = "job-1"
	job.Domain = "acme"
	job.Priority = 9

	var enqueuedPriority int
	jobs := &fakeJobs{
		getByID: func(context.Context, string) (*domain.JobDefinition, error) { return &job, nil },
	}
	store := &fakeJobStore{
		enqueuePending: func(_ context.Context, _, _ string, priority int, _ time.Time) error {
			enqueuedPriority = priority
			return nil
		},
	}
	bus := eventbus.New(testLogger())
	_, events := bus.Subscribe()

	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, store, bus)
	if _, err := u.RunNow(context.Background(), acmeScope(), "job-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enqueuedPriority != 9 {
		t.Errorf("enqueued priority = %d, want 9", enqueuedPriority)
	}

	types := eventTypes(drainEvents(events))
	if len(types) != 2 || types[0] != domain.EventJobManualRun || types[1] != domain.EventJobEnqueued {
		t.Errorf("events = %v, want [job_manual_run job_enqueued]", types)
	}
}

func TestList_AdminWildcardSpansDomains(t *testing.T) {
	jobs := &fakeJobs{
		list: func(context.Context, int) ([]*domain.JobDefinition, error) {
			return []*domain.JobDefinition{{ID: "a"}, {ID: "b"}}, nil
		},
	}
	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, &fakeJobStore{}, eventbus.New(testLogger()))

	out, err := u.List(context.Background(), usecase.Scope{Domain: "admin", Admin: true}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("got %d jobs, want 2 across domains", len(out))
	}
}

func TestList_AdminWithExplicitDomain_Scoped(t *testing.T) {
	var askedDomain string
	jobs := &fakeJobs{
		listByDomain: func(_ context.Context, dom string, _ int) ([]*domain.JobDefinition, error) {
			askedDomain = dom
			return nil, nil
		},
	}
	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, &fakeJobStore{}, eventbus.New(testLogger()))

	scope := usecase.Scope{Domain: "acme", Admin: true, Explicit: true}
	if _, err := u.List(context.Background(), scope, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if askedDomain != "acme" {
		t.Errorf("listed domain %q, want acme", askedDomain)
	}
}

func TestGetRun_CrossDomain_NotFound(t *testing.T) {
	runs := &fakeRuns{
		getByID: func(context.Context, string) (*domain.JobRun, error) {
			return &domain.JobRun{ID: "run-1", Domain: "other"}, nil
		},
	}
	u := usecase.NewJobUsecase(&fakeJobs{}, runs, &fakeJobStore{}, eventbus.New(testLogger()))

	if _, err := u.GetRun(context.Background(), acmeScope(), "run-1"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("error = %v, want ErrRunNotFound", err)
	}
}

func TestQueueOverview_EnrichesPendingFromDefinitions(t *testing.T) {
	jobs := &fakeJobs{
		getByID: func(_ context.Context, jobID string) (*domain.JobDefinition, error) {
			if jobID == "job-known" {
				return &domain.JobDefinition{ID: jobID, Name: "backup", User: "ops"}, nil
			}
			return nil, domain.ErrJobNotFound
		},
		upcoming: func(context.Context, string, int) ([]*domain.JobDefinition, error) {
			return []*domain.JobDefinition{{ID: "job-sched"}}, nil
		},
	}
	store := &fakeJobStore{
		peekPending: func(context.Context, string, int64) ([]repository.PendingEntry, error) {
			return []repository.PendingEntry{
				{JobID: "job-known", Priority: 7},
				{JobID: "job-gone", Priority: 3},
			}, nil
		},
	}
	u := usecase.NewJobUsecase(jobs, &fakeRuns{}, store, eventbus.New(testLogger()))

	overview, err := u.QueueOverview(context.Background(), acmeScope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overview.Pending) != 2 {
		t.Fatalf("got %d pending rows, want 2", len(overview.Pending))
	}
	if overview.Pending[0].Name != "backup" || overview.Pending[0].User != "ops" {
		t.Errorf("row 0 = %+v, want enriched from definition", overview.Pending[0])
	}
	if overview.Pending[1].Name != "" {
		t.Errorf("row 1 = %+v, want bare entry for deleted definition", overview.Pending[1])
	}
	if len(overview.Schedules) != 1 {
		t.Errorf("got %d schedules, want 1", len(overview.Schedules))
	}
}
