package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/eventbus"
	"github.com/hydrajobs/hydra/internal/metrics"
	"github.com/hydrajobs/hydra/internal/repository"
)

// FailoverStore is the slice of the coordination store the failover
// monitor needs.
type FailoverStore interface {
	repository.DomainSet
	repository.Queues
	repository.WorkerRegistry
	repository.RunningTracker
}

// Failover sweeps for workers whose heartbeat went stale, requeues their
// in-flight jobs and fails their runs. The worker's registry entry stays
// so operators can see what disappeared; only its liveness changes.
type Failover struct {
	store        FailoverStore
	jobs         repository.JobRepository
	runs         repository.RunRepository
	bus          *eventbus.Bus
	logger       *slog.Logger
	interval     time.Duration
	heartbeatTTL time.Duration
}

func NewFailover(
	store FailoverStore,
	jobs repository.JobRepository,
	runs repository.RunRepository,
	bus *eventbus.Bus,
	logger *slog.Logger,
	interval time.Duration,
	heartbeatTTL time.Duration,
) *Failover {
	return &Failover{
		store:        store,
		jobs:         jobs,
		runs:         runs,
		bus:          bus,
		logger:       logger.With("component", "failover"),
		interval:     interval,
		heartbeatTTL: heartbeatTTL,
	}
}

func (f *Failover) Start(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("failover monitor started", "interval", f.interval, "heartbeat_ttl", f.heartbeatTTL)
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("failover monitor shut down")
			return
		case <-ticker.C:
			f.Sweep(ctx)
		}
	}
}

// Sweep checks every domain for stale workers once.
func (f *Failover) Sweep(ctx context.Context) {
	started := time.Now()
	defer func() {
		metrics.FailoverCycleDuration.Observe(time.Since(started).Seconds())
	}()

	domains, err := f.store.Domains(ctx)
	if err != nil {
		f.logger.Error("list domains", "error", err)
		return
	}

	cutoff := started.Add(-f.heartbeatTTL)
	for _, dom := range domains {
		if ctx.Err() != nil {
			return
		}
		stale, err := f.store.StaleWorkers(ctx, dom, cutoff)
		if err != nil {
			f.logger.Error("list stale workers", "domain", dom, "error", err)
			continue
		}
		for _, workerID := range stale {
			if err := f.Recover(ctx, dom, workerID); err != nil {
				f.logger.Error("recover worker", "domain", dom, "worker_id", workerID, "error", err)
			}
		}
	}
}

// Recover requeues every job the lost worker was running, fails the
// matching runs and marks the worker offline. Safe to call repeatedly:
// an already recovered worker has nothing running and stays offline.
func (f *Failover) Recover(ctx context.Context, dom, workerID string) error {
	w, err := f.store.Get(ctx, dom, workerID)
	if err != nil {
		if errors.Is(err, domain.ErrWorkerNotFound) {
			return nil
		}
		return fmt.Errorf("load worker: %w", err)
	}

	jobIDs, err := f.store.Running(ctx, dom, workerID)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	queued, err := f.store.DrainWorker(ctx, dom, workerID)
	if err != nil {
		return fmt.Errorf("drain worker queue: %w", err)
	}
	if w.Status == domain.WorkerOffline && len(jobIDs) == 0 && len(queued) == 0 {
		return nil
	}

	f.logger.Warn("worker heartbeat stale, recovering",
		"domain", dom, "worker_id", workerID, "running", len(jobIDs), "queued", len(queued))

	now := time.Now()
	for _, jobID := range jobIDs {
		if err := f.requeue(ctx, dom, workerID, jobID, now); err != nil {
			return err
		}
		if err := f.store.Untrack(ctx, dom, workerID, jobID); err != nil {
			f.logger.Error("untrack recovered job", "job_id", jobID, "error", err)
		}
	}
	// Delivered but never picked up; these have no run record to fail.
	for _, jobID := range queued {
		if err := f.requeue(ctx, dom, workerID, jobID, now); err != nil {
			return err
		}
	}

	failed, err := f.runs.MarkWorkerLost(ctx, dom, workerID)
	if err != nil {
		f.logger.Error("mark runs worker_lost", "domain", dom, "worker_id", workerID, "error", err)
	} else if failed > 0 {
		f.logger.Info("runs failed as worker_lost", "domain", dom, "worker_id", workerID, "count", failed)
	}

	if err := f.store.MarkOffline(ctx, dom, workerID); err != nil {
		return fmt.Errorf("mark worker offline: %w", err)
	}
	return nil
}

func (f *Failover) requeue(ctx context.Context, dom, workerID, jobID string, now time.Time) error {
	priority := domain.DefaultPriority
	if job, err := f.jobs.GetByID(ctx, jobID); err == nil {
		priority = job.Priority
	}

	if err := f.store.EnqueuePending(ctx, dom, jobID, priority, now); err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}

	metrics.FailoverRequeuedTotal.Inc()
	metrics.JobsRequeuedTotal.WithLabelValues("worker_lost").Inc()
	f.bus.Publish(domain.EventJobRequeued, map[string]any{
		"job_id":    jobID,
		"domain":    dom,
		"worker_id": workerID,
		"reason":    "worker_lost",
	})
	return nil
}
