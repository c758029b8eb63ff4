package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrajobs/hydra/internal/affinity"
	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/eventbus"
	"github.com/hydrajobs/hydra/internal/metrics"
	"github.com/hydrajobs/hydra/internal/repository"
)

// DispatchStore is the slice of the coordination store the dispatcher
// needs.
type DispatchStore interface {
	repository.DomainSet
	repository.Queues
	repository.WorkerRegistry
	repository.TokenStore
}

// Dispatcher drains pending queues across all domains in priority order
// and hands each job to the best eligible worker. A popped job is always
// dispatched, requeued or logged as dropped.
type Dispatcher struct {
	store        DispatchStore
	jobs         repository.JobRepository
	bus          *eventbus.Bus
	logger       *slog.Logger
	heartbeatTTL time.Duration
	idleSleep    time.Duration
}

func NewDispatcher(
	store DispatchStore,
	jobs repository.JobRepository,
	bus *eventbus.Bus,
	logger *slog.Logger,
	heartbeatTTL time.Duration,
	idleSleep time.Duration,
) *Dispatcher {
	return &Dispatcher{
		store:        store,
		jobs:         jobs,
		bus:          bus,
		logger:       logger.With("component", "dispatcher"),
		heartbeatTTL: heartbeatTTL,
		idleSleep:    idleSleep,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started", "heartbeat_ttl", d.heartbeatTTL)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shut down")
			return
		default:
		}

		if err := d.DispatchOne(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			d.logger.Error("dispatch cycle", "error", err)
			d.sleep(ctx)
		}
	}
}

// DispatchOne pops and places at most one job. Idle queues and missing
// workers are not errors; the loop just sleeps.
func (d *Dispatcher) DispatchOne(ctx context.Context) error {
	domains, err := d.store.Domains(ctx)
	if err != nil {
		return fmt.Errorf("list domains: %w", err)
	}
	if len(domains) == 0 {
		d.sleep(ctx)
		return nil
	}

	popped, err := d.store.PopMaxPending(ctx, domains)
	if err != nil {
		return fmt.Errorf("pop pending: %w", err)
	}
	if popped == nil {
		d.sleep(ctx)
		return nil
	}

	started := time.Now()

	job, err := d.jobs.GetByID(ctx, popped.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			// Requeueing would loop forever on a deleted definition.
			d.logger.Error("dropping pending job with missing definition",
				"job_id", popped.JobID, "domain", popped.Domain)
			return nil
		}
		d.requeue(ctx, popped)
		return fmt.Errorf("fetch definition %s: %w", popped.JobID, err)
	}

	target, err := d.selectWorker(ctx, popped.Domain, job)
	if err != nil {
		d.requeue(ctx, popped)
		return err
	}
	if target == nil {
		d.requeue(ctx, popped)
		metrics.JobsRequeuedTotal.WithLabelValues("no_worker").Inc()
		d.bus.Publish(domain.EventJobPending, map[string]any{
			"job_id": job.ID,
			"domain": job.Domain,
			"reason": "no_worker",
		})
		d.sleep(ctx)
		return nil
	}

	if err := d.store.PushWorker(ctx, popped.Domain, target.ID, job.ID); err != nil {
		d.requeue(ctx, popped)
		return fmt.Errorf("push to worker %s: %w", target.ID, err)
	}

	metrics.DispatchLatency.Observe(time.Since(started).Seconds())
	metrics.JobsDispatchedTotal.WithLabelValues(job.Domain).Inc()
	d.bus.Publish(domain.EventJobDispatched, map[string]any{
		"job_id":    job.ID,
		"domain":    job.Domain,
		"worker_id": target.ID,
		"priority":  job.Priority,
	})
	d.logger.Info("job dispatched", "job_id", job.ID, "domain", job.Domain, "worker_id", target.ID)
	return nil
}

// selectWorker filters the domain's workers down to live, online,
// unsaturated, token-matching candidates that pass affinity, then picks
// the least loaded.
func (d *Dispatcher) selectWorker(ctx context.Context, dom string, job *domain.JobDefinition) (*domain.WorkerInfo, error) {
	workers, err := d.store.List(ctx, dom)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	tokenHash, err := d.store.DomainHash(ctx, dom)
	if err != nil {
		return nil, fmt.Errorf("domain token hash: %w", err)
	}

	cutoff := time.Now().Add(-d.heartbeatTTL)
	var candidates []*domain.WorkerInfo
	for _, w := range workers {
		if w.LastHeartbeat.Before(cutoff) {
			continue
		}
		if w.State != domain.StateOnline {
			continue
		}
		if w.CurrentRunning >= w.MaxConcurrency {
			continue
		}
		if tokenHash != "" && w.DomainTokenHash != tokenHash {
			continue
		}
		if !affinity.Passes(job, w) {
			continue
		}
		candidates = append(candidates, w)
	}
	return affinity.SelectBest(candidates), nil
}

// requeue restores the popped entry with its original score so the job
// keeps its place in line.
func (d *Dispatcher) requeue(ctx context.Context, popped *repository.PoppedJob) {
	if err := d.store.RequeuePending(ctx, popped.Domain, popped.JobID, popped.Score); err != nil {
		d.logger.Error("requeue pending job", "job_id", popped.JobID, "domain", popped.Domain, "error", err)
	}
}

func (d *Dispatcher) sleep(ctx context.Context) {
	t := time.NewTimer(d.idleSleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
