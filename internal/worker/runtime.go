// Package worker runs the node-side runtime: it registers the host with
// the coordination store, heartbeats, pulls deliveries off its queue and
// executes them with bounded concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hydrajobs/hydra/internal/completion"
	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/email"
	"github.com/hydrajobs/hydra/internal/executor"
	"github.com/hydrajobs/hydra/internal/metrics"
	"github.com/hydrajobs/hydra/internal/repository"
	"github.com/hydrajobs/hydra/internal/runid"
)

const (
	defaultHeartbeatEvery = 2 * time.Second
	intakeTimeout         = 2 * time.Second
	// Budget for writes that must land even when the run context died.
	finalizeGrace = 10 * time.Second
)

// Store is the slice of the coordination store the runtime needs.
type Store interface {
	repository.Queues
	repository.WorkerRegistry
	repository.RunningTracker
	repository.LogStream
}

// JobRunner abstracts the process executor.
type JobRunner interface {
	FetchSource(ctx context.Context, src *domain.SourceConfig, jobID string) (string, func(), error)
	Prepare(ctx context.Context, job *domain.JobDefinition, baseDir string) (executor.Spec, func(), error)
	Run(ctx context.Context, spec executor.Spec, onLine executor.LineFunc) (executor.Result, error)
}

// Options groups the runtime dependencies. Notifier may be nil to
// disable failure emails.
type Options struct {
	Info           *domain.WorkerInfo
	Store          Store
	Jobs           repository.JobRepository
	Runs           repository.RunRepository
	Runner         JobRunner
	Notifier       email.Sender
	Logger         *slog.Logger
	DrainTimeout   time.Duration
	HeartbeatEvery time.Duration
}

type Runtime struct {
	info           *domain.WorkerInfo
	store          Store
	jobs           repository.JobRepository
	runs           repository.RunRepository
	runner         JobRunner
	notifier       email.Sender
	logger         *slog.Logger
	drainTimeout   time.Duration
	heartbeatEvery time.Duration

	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.Mutex
	active map[string]struct{}
}

func New(opts Options) (*Runtime, error) {
	if opts.Info == nil {
		return nil, errors.New("Info is required")
	}
	if opts.Store == nil {
		return nil, errors.New("Store is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("Jobs is required")
	}
	if opts.Runs == nil {
		return nil, errors.New("Runs is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("Runner is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("Logger is required")
	}
	if opts.Info.MaxConcurrency < 1 {
		opts.Info.MaxConcurrency = 1
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = defaultHeartbeatEvery
	}

	return &Runtime{
		info:           opts.Info,
		store:          opts.Store,
		jobs:           opts.Jobs,
		runs:           opts.Runs,
		runner:         opts.Runner,
		notifier:       opts.Notifier,
		logger:         opts.Logger.With("component", "worker", "worker_id", opts.Info.ID),
		drainTimeout:   opts.DrainTimeout,
		heartbeatEvery: opts.HeartbeatEvery,
		sem:            make(chan struct{}, opts.Info.MaxConcurrency),
		active:         make(map[string]struct{}),
	}, nil
}

// Start registers the worker and blocks until ctx is canceled and every
// in-flight run finished or the drain grace elapsed.
func (r *Runtime) Start(ctx context.Context) error {
	r.info.Status = domain.WorkerOnline
	if r.info.State == "" {
		r.info.State = domain.StateOnline
	}
	r.info.LastHeartbeat = time.Now()

	if err := r.store.Register(ctx, r.info); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	r.logger.Info("worker registered",
		"domain", r.info.Domain, "os", r.info.OS, "hostname", r.info.Hostname,
		"max_concurrency", r.info.MaxConcurrency)

	// Runs outlive the shutdown signal; they are canceled separately
	// when the drain grace elapses.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	go r.heartbeatLoop(ctx)
	r.intakeLoop(ctx, runCtx)

	r.drain(cancelRuns)

	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeGrace)
	defer cancel()
	if err := r.store.MarkOffline(offCtx, r.info.Domain, r.info.ID); err != nil {
		r.logger.Error("mark self offline", "error", err)
	}
	r.logger.Info("worker shut down")
	return nil
}

func (r *Runtime) intakeLoop(ctx, runCtx context.Context) {
	r.logger.Info("intake started")
	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := r.store.PopWorker(ctx, r.info.Domain, r.info.ID, intakeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("pop delivery queue", "error", err)
			sleepCtx(ctx, time.Second)
			continue
		}
		if jobID == "" {
			continue
		}
		poppedAt := time.Now()

		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			r.pushBack(jobID)
			return
		}

		r.wg.Add(1)
		metrics.RunsInFlight.Inc()
		go func(id string, at time.Time) {
			defer r.wg.Done()
			defer metrics.RunsInFlight.Dec()
			defer func() { <-r.sem }()
			r.runJob(runCtx, id, at)
		}(jobID, poppedAt)
	}
}

// pushBack returns a popped but unstarted delivery to the queue so the
// failover drain can recover it.
func (r *Runtime) pushBack(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.PushWorker(ctx, r.info.Domain, r.info.ID, jobID); err != nil {
		r.logger.Error("return popped delivery on shutdown", "job_id", jobID, "error", err)
	}
}

// runJob drives one delivery through its whole lifecycle. The deferred
// counter and tracking cleanups run on every path, panics included.
func (r *Runtime) runJob(ctx context.Context, jobID string, poppedAt time.Time) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("run panicked", "job_id", jobID, "panic", p)
		}
	}()

	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		r.logger.Error("load definition, dropping delivery", "job_id", jobID, "error", err)
		return
	}
	logger := r.logger.With("job_id", job.ID, "domain", job.Domain)

	count, err := r.store.IncrRunning(ctx, job.Domain, r.info.ID, 1)
	if err != nil {
		logger.Error("increment running counter", "error", err)
		count = 1
	}
	defer func() {
		decCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeGrace)
		defer cancel()
		if _, err := r.store.IncrRunning(decCtx, job.Domain, r.info.ID, -1); err != nil {
			logger.Error("decrement running counter", "error", err)
		}
	}()

	now := time.Now()
	run := &domain.JobRun{
		ID:               uuid.NewString(),
		JobID:            job.ID,
		Domain:           job.Domain,
		User:             job.User,
		WorkerID:         r.info.ID,
		Status:           domain.RunRunning,
		ScheduledTS:      poppedAt,
		StartTS:          now,
		Slot:             int(count) - 1,
		AttemptsUsed:     1,
		RetriesRemaining: job.Retries,
		ScheduleMode:     job.Schedule.Mode,
		ExecutorType:     job.Executor.Type,
		QueueLatencyMS:   now.Sub(job.CreatedAt).Milliseconds(),
	}
	// The record exists before execution so a worker crash leaves a
	// visible running row for the failover monitor to fail.
	if _, err := r.runs.Create(ctx, run); err != nil {
		logger.Error("create run record, aborting", "error", err)
		return
	}
	logger = logger.With("run_id", run.ID)
	// Context-aware logs further down (executor, git fetch) pick the id
	// up from here.
	ctx = runid.WithRunID(ctx, run.ID)
	metrics.QueueLatency.Observe(float64(run.QueueLatencyMS) / 1000)

	if err := r.store.Track(ctx, job.Domain, r.info.ID, job.ID, repository.RunningRecord{
		RunID:     run.ID,
		WorkerID:  r.info.ID,
		User:      job.User,
		Domain:    job.Domain,
		Heartbeat: now,
	}); err != nil {
		logger.Error("track running job", "error", err)
	}
	r.markActive(job.ID)
	defer func() {
		r.clearActive(job.ID)
		unCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeGrace)
		defer cancel()
		if err := r.store.Untrack(unCtx, job.Domain, r.info.ID, job.ID); err != nil {
			logger.Error("untrack job", "error", err)
		}
	}()

	baseDir, srcCleanup, err := r.runner.FetchSource(ctx, job.Source, job.ID)
	if err != nil {
		r.finish(ctx, logger, job, run, executor.Result{ExitCode: -1}, false, fmt.Sprintf("fetch source: %v", err))
		return
	}
	defer srcCleanup()

	spec, prepCleanup, err := r.runner.Prepare(ctx, job, baseDir)
	if err != nil {
		r.finish(ctx, logger, job, run, executor.Result{ExitCode: -1}, false, fmt.Sprintf("prepare executor: %v", err))
		return
	}
	defer prepCleanup()

	logger.Info("run started", "executor", job.Executor.Type, "slot", run.Slot, "attempts_allowed", job.Retries+1)

	onLine := r.lineStreamer(job, run.ID)
	var res executor.Result
	var ok bool
	var reason string
	for {
		res, err = r.runner.Run(ctx, spec, onLine)
		if err != nil {
			logger.Error("attempt errored", "attempt", run.AttemptsUsed, "error", err)
			ok, reason = false, fmt.Sprintf("execution error: %v", err)
		} else {
			ok, reason = completion.Evaluate(job.Completion, res.ExitCode, res.Stdout, res.Stderr)
		}
		if ok || run.RetriesRemaining == 0 || ctx.Err() != nil {
			break
		}
		run.AttemptsUsed++
		run.RetriesRemaining--
		logger.Warn("attempt failed, retrying",
			"reason", reason, "attempt", run.AttemptsUsed, "allowed", job.Retries+1)
	}

	r.finish(ctx, logger, job, run, res, ok, reason)
}

func (r *Runtime) finish(ctx context.Context, logger *slog.Logger, job *domain.JobDefinition, run *domain.JobRun, res executor.Result, ok bool, reason string) {
	endTS := time.Now()
	run.EndTS = &endTS
	run.ReturnCode = &res.ExitCode
	run.Stdout = res.Stdout
	run.Stderr = res.Stderr
	run.CompletionReason = reason

	outcome := "failed"
	run.Status = domain.RunFailed
	if ok {
		outcome = "success"
		run.Status = domain.RunSuccess
	}

	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeGrace)
	defer cancel()
	if err := r.runs.Finish(finCtx, run); err != nil {
		logger.Error("persist run outcome", "error", err)
	}

	metrics.RunsCompletedTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.WithLabelValues(string(job.Executor.Type)).Observe(run.Duration().Seconds())

	if !ok && job.NotifyEmail != "" && r.notifier != nil {
		subject, body := email.FailureNotification(job, run)
		if err := r.notifier.Send(finCtx, job.NotifyEmail, subject, body); err != nil {
			logger.Error("send failure notification", "to", job.NotifyEmail, "error", err)
		}
	}

	if ok {
		logger.Info("run succeeded",
			"exit_code", res.ExitCode, "attempts", run.AttemptsUsed, "duration", run.Duration())
	} else {
		logger.Warn("run failed",
			"exit_code", res.ExitCode, "attempts", run.AttemptsUsed, "reason", reason, "killed", res.Killed)
	}
}

// lineStreamer publishes each output line to the domain log stream as it
// is produced.
func (r *Runtime) lineStreamer(job *domain.JobDefinition, runID string) executor.LineFunc {
	return func(stream, text string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := r.store.Publish(ctx, domain.LogChunk{
			RunID:    runID,
			JobID:    job.ID,
			WorkerID: r.info.ID,
			Domain:   job.Domain,
			TS:       time.Now().UTC(),
			Stream:   stream,
			Text:     text,
		})
		if err != nil {
			r.logger.Warn("publish log chunk", "run_id", runID, "error", err)
			return
		}
		metrics.LogChunksPublishedTotal.Inc()
	}
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Heartbeat(ctx, r.info.Domain, r.info.ID, time.Now(), r.activeJobs()); err != nil {
				r.logger.Warn("heartbeat", "error", err)
			}
		}
	}
}

func (r *Runtime) markActive(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[jobID] = struct{}{}
}

func (r *Runtime) clearActive(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, jobID)
}

func (r *Runtime) activeJobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.active))
	for id := range r.active {
		out = append(out, id)
	}
	return out
}

// drain waits for in-flight runs, escalating to a hard cancel when the
// grace elapses.
func (r *Runtime) drain(cancelRuns context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(r.drainTimeout):
	}

	r.logger.Warn("drain grace elapsed, killing in-flight runs")
	cancelRuns()

	select {
	case <-done:
	case <-time.After(finalizeGrace):
		r.logger.Error("in-flight runs did not stop after cancel")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
