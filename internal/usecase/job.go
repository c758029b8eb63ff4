package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/eventbus"
	"github.com/hydrajobs/hydra/internal/metrics"
	"github.com/hydrajobs/hydra/internal/repository"
)

// Scope is the caller identity the transport layer resolved: the
// effective domain plus whether the admin token was used. Admin reads
// traverse every domain unless the request named one explicitly.
type Scope struct {
	Domain   string
	Admin    bool
	Explicit bool // domain came from the request, not a default
}

// Allows reports whether the caller may touch resources of dom.
func (s Scope) Allows(dom string) bool { return s.Admin || s.Domain == dom }

// Wildcard reports whether reads should span all domains.
func (s Scope) Wildcard() bool { return s.Admin && !s.Explicit }

// JobStore is the slice of the coordination store job submission needs.
type JobStore interface {
	repository.DomainSet
	repository.Queues
}

type JobUsecase struct {
	jobs  repository.JobRepository
	runs  repository.RunRepository
	store JobStore
	bus   *eventbus.Bus
}

func NewJobUsecase(jobs repository.JobRepository, runs repository.RunRepository, store JobStore, bus *eventbus.Bus) *JobUsecase {
	return &JobUsecase{jobs: jobs, runs: runs, store: store, bus: bus}
}

// Create validates and persists a definition in the caller's domain,
// registers the domain for dispatch and announces the submission.
// Enabled immediate jobs are enqueued right away.
func (u *JobUsecase) Create(ctx context.Context, scope Scope, def domain.JobDefinition) (*domain.JobDefinition, error) {
	def.Domain = scope.Domain
	normalized, verrs := ValidateDefinition(ctx, def, time.Now().UTC())
	if verrs != nil {
		return nil, verrs
	}
	if normalized.ID == "" {
		normalized.ID = uuid.NewString()
	}

	created, err := u.jobs.Create(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := u.store.AddDomain(ctx, created.Domain); err != nil {
		return nil, fmt.Errorf("register domain: %w", err)
	}

	u.bus.Publish(domain.EventJobSubmitted, map[string]any{
		"job_id":   created.ID,
		"domain":   created.Domain,
		"name":     created.Name,
		"user":     created.User,
		"priority": created.Priority,
	})

	if created.Schedule.Mode == domain.ScheduleImmediate && created.Schedule.Enabled {
		if err := u.enqueue(ctx, created, "api"); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// CreateAdhoc persists a one-shot definition and enqueues it
// unconditionally. The schedule is forced to a disabled immediate so the
// ticker never touches it.
func (u *JobUsecase) CreateAdhoc(ctx context.Context, scope Scope, def domain.JobDefinition) (*domain.JobDefinition, error) {
	def.Domain = scope.Domain
	def.Schedule = domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: false}
	normalized, verrs := ValidateDefinition(ctx, def, time.Now().UTC())
	if verrs != nil {
		return nil, verrs
	}
	if normalized.ID == "" {
		normalized.ID = uuid.NewString()
	}

	created, err := u.jobs.Create(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("create adhoc job: %w", err)
	}
	if err := u.store.AddDomain(ctx, created.Domain); err != nil {
		return nil, fmt.Errorf("register domain: %w", err)
	}

	u.bus.Publish(domain.EventJobSubmitted, map[string]any{
		"job_id":   created.ID,
		"domain":   created.Domain,
		"name":     created.Name,
		"user":     created.User,
		"priority": created.Priority,
		"adhoc":    true,
	})
	if err := u.enqueue(ctx, created, "api"); err != nil {
		return nil, err
	}
	return created, nil
}

// Update validates and persists changes to an existing definition. The
// schedule is re-initialized only when its fields changed, so an
// unrelated edit does not reset a running cadence.
func (u *JobUsecase) Update(ctx context.Context, scope Scope, def domain.JobDefinition) (*domain.JobDefinition, error) {
	current, err := u.jobs.GetByID(ctx, def.ID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if !scope.Allows(current.Domain) {
		return nil, domain.ErrJobNotFound
	}

	def.Domain = current.Domain
	def.CreatedAt = current.CreatedAt
	normalized, verrs := ValidateDefinition(ctx, def, time.Now().UTC())
	if verrs != nil {
		return nil, verrs
	}
	if !scheduleChanged(current.Schedule, normalized.Schedule) {
		normalized.Schedule.NextRunAt = current.Schedule.NextRunAt
	}

	updated, err := u.jobs.Update(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	u.bus.Publish(domain.EventJobUpdated, map[string]any{
		"job_id": updated.ID,
		"domain": updated.Domain,
		"name":   updated.Name,
	})
	return updated, nil
}

// RunNow enqueues an existing definition at its configured priority,
// bypassing the schedule.
func (u *JobUsecase) RunNow(ctx context.Context, scope Scope, jobID string) (*domain.JobDefinition, error) {
	job, err := u.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if !scope.Allows(job.Domain) {
		return nil, domain.ErrJobNotFound
	}

	u.bus.Publish(domain.EventJobManualRun, map[string]any{
		"job_id": job.ID,
		"domain": job.Domain,
		"name":   job.Name,
	})
	if err := u.enqueue(ctx, job, "manual"); err != nil {
		return nil, err
	}
	return job, nil
}

func (u *JobUsecase) Get(ctx context.Context, scope Scope, jobID string) (*domain.JobDefinition, error) {
	job, err := u.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if !scope.Allows(job.Domain) {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (u *JobUsecase) List(ctx context.Context, scope Scope, limit int) ([]*domain.JobDefinition, error) {
	if scope.Wildcard() {
		jobs, err := u.jobs.List(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		return jobs, nil
	}
	jobs, err := u.jobs.ListByDomain(ctx, scope.Domain, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Runs returns the run history of one definition, newest first.
func (u *JobUsecase) Runs(ctx context.Context, scope Scope, jobID string, limit int) ([]*domain.JobRun, error) {
	if _, err := u.Get(ctx, scope, jobID); err != nil {
		return nil, err
	}
	runs, err := u.runs.ListByJob(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// History returns recent runs across the caller's scope.
func (u *JobUsecase) History(ctx context.Context, scope Scope, limit int) ([]*domain.JobRun, error) {
	if scope.Wildcard() {
		runs, err := u.runs.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("recent runs: %w", err)
		}
		return runs, nil
	}
	runs, err := u.runs.ListByDomain(ctx, scope.Domain, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return runs, nil
}

// GetRun fetches one run document, scoped like everything else.
func (u *JobUsecase) GetRun(ctx context.Context, scope Scope, runID string) (*domain.JobRun, error) {
	run, err := u.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if !scope.Allows(run.Domain) {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

func (u *JobUsecase) enqueue(ctx context.Context, job *domain.JobDefinition, source string) error {
	if err := u.store.EnqueuePending(ctx, job.Domain, job.ID, job.Priority, time.Now()); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(source).Inc()
	u.bus.Publish(domain.EventJobEnqueued, map[string]any{
		"job_id":   job.ID,
		"domain":   job.Domain,
		"priority": job.Priority,
		"source":   source,
	})
	return nil
}

// scheduleChanged compares everything the user controls, ignoring the
// computed NextRunAt.
func scheduleChanged(a, b domain.ScheduleConfig) bool {
	return a.Mode != b.Mode ||
		a.Cron != b.Cron ||
		a.IntervalSeconds != b.IntervalSeconds ||
		a.Timezone != b.Timezone ||
		a.Enabled != b.Enabled ||
		!equalTimePtr(a.StartAt, b.StartAt) ||
		!equalTimePtr(a.EndAt, b.EndAt)
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
