package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/eventbus"
	"github.com/hydrajobs/hydra/internal/metrics"
	"github.com/hydrajobs/hydra/internal/repository"
	"github.com/hydrajobs/hydra/internal/schedule"
)

const dueBatchSize = 100

// TickerStore is the slice of the coordination store the ticker needs.
type TickerStore interface {
	repository.DomainSet
	repository.Queues
}

// Ticker fires cron and interval schedules. Several tickers can run at
// once: the durable store's compare-and-set on next_run_at guarantees
// each fire is enqueued exactly once.
type Ticker struct {
	store    TickerStore
	jobs     repository.JobRepository
	bus      *eventbus.Bus
	logger   *slog.Logger
	interval time.Duration
}

func NewTicker(
	store TickerStore,
	jobs repository.JobRepository,
	bus *eventbus.Bus,
	logger *slog.Logger,
	interval time.Duration,
) *Ticker {
	return &Ticker{
		store:    store,
		jobs:     jobs,
		bus:      bus,
		logger:   logger.With("component", "ticker"),
		interval: interval,
	}
}

func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("schedule ticker started", "interval", t.interval)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("schedule ticker shut down")
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick sweeps every domain once. Per-domain failures are logged and do
// not stop the sweep.
func (t *Ticker) Tick(ctx context.Context) {
	domains, err := t.store.Domains(ctx)
	if err != nil {
		t.logger.Error("list domains", "error", err)
		return
	}

	now := time.Now()
	for _, dom := range domains {
		if ctx.Err() != nil {
			return
		}
		if err := t.tickDomain(ctx, dom, now); err != nil {
			t.logger.Error("tick domain", "domain", dom, "error", err)
		}
	}
}

func (t *Ticker) tickDomain(ctx context.Context, dom string, now time.Time) error {
	due, err := t.jobs.Due(ctx, dom, now, dueBatchSize)
	if err != nil {
		return fmt.Errorf("list due jobs: %w", err)
	}

	for _, job := range due {
		if err := t.fire(ctx, job, now); err != nil {
			t.logger.Error("fire schedule", "job_id", job.ID, "domain", dom, "error", err)
		}
	}
	return nil
}

// fire advances one schedule under CAS and enqueues on a win. A deeply
// missed schedule replays one fire per tick until it catches up; losing
// the CAS means another ticker already fired this slot.
func (t *Ticker) fire(ctx context.Context, job *domain.JobDefinition, now time.Time) error {
	prev := job.Schedule.NextRunAt

	advanced, err := schedule.Advance(job.Schedule, now)
	if err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}

	won, err := t.jobs.AdvanceSchedule(ctx, job.ID, prev, advanced.NextRunAt, advanced.Enabled)
	if err != nil {
		return fmt.Errorf("advance schedule cas: %w", err)
	}
	if !won {
		metrics.ScheduleCASLossesTotal.Inc()
		t.logger.Debug("schedule cas lost", "job_id", job.ID, "domain", job.Domain)
		return nil
	}

	// Score the entry with the nominal fire time so replayed fires keep
	// their order. An already-pending job keeps its original position.
	firedAt := now
	if prev != nil {
		firedAt = *prev
	}
	if err := t.store.EnqueuePending(ctx, job.Domain, job.ID, job.Priority, firedAt); err != nil {
		return fmt.Errorf("enqueue fired job: %w", err)
	}

	metrics.ScheduleFiresTotal.Inc()
	metrics.JobsEnqueuedTotal.WithLabelValues("ticker").Inc()
	t.bus.Publish(domain.EventJobScheduled, map[string]any{
		"job_id":      job.ID,
		"domain":      job.Domain,
		"priority":    job.Priority,
		"fired_at":    firedAt.UTC().Format(time.RFC3339),
		"next_run_at": formatNextRun(advanced.NextRunAt),
	})
	t.logger.Info("schedule fired",
		"job_id", job.ID, "domain", job.Domain, "mode", job.Schedule.Mode, "fired_at", firedAt)
	return nil
}

func formatNextRun(next *time.Time) any {
	if next == nil {
		return nil
	}
	return next.UTC().Format(time.RFC3339)
}
