package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hydrajobs/hydra/internal/domain"
)

const jobRunColumns = `
	id, job_id, domain, username, worker_id, status, scheduled_ts, start_ts, end_ts,
	returncode, stdout, stderr, slot, attempts_used, retries_remaining,
	schedule_mode, executor_type, queue_latency_ms, completion_reason`

type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Create(ctx context.Context, run *domain.JobRun) (*domain.JobRun, error) {
	query := `
		INSERT INTO job_runs (
			id, job_id, domain, username, worker_id, status, scheduled_ts, start_ts,
			slot, attempts_used, retries_remaining, schedule_mode, executor_type, queue_latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + jobRunColumns

	row := r.pool.QueryRow(ctx, query,
		run.ID, run.JobID, run.Domain, run.User, run.WorkerID, string(run.Status),
		run.ScheduledTS, run.StartTS, run.Slot, run.AttemptsUsed, run.RetriesRemaining,
		string(run.ScheduleMode), string(run.ExecutorType), run.QueueLatencyMS,
	)
	return scanJobRun(row)
}

// Finish records the terminal state of a run.
func (r *RunRepository) Finish(ctx context.Context, run *domain.JobRun) error {
	query := `
		UPDATE job_runs
		SET    status = $2, end_ts = $3, returncode = $4, stdout = $5, stderr = $6,
		       attempts_used = $7, retries_remaining = $8, completion_reason = $9
		WHERE  id = $1`

	tag, err := r.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.EndTS, run.ReturnCode, run.Stdout, run.Stderr,
		run.AttemptsUsed, run.RetriesRemaining, run.CompletionReason,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, runID string) (*domain.JobRun, error) {
	query := `SELECT ` + jobRunColumns + ` FROM job_runs WHERE id = $1`
	return scanJobRun(r.pool.QueryRow(ctx, query, runID))
}

func (r *RunRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]*domain.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + jobRunColumns + `
		FROM job_runs
		WHERE job_id = $1
		ORDER BY start_ts DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs by job: %w", err)
	}
	defer rows.Close()
	return collectJobRuns(rows)
}

func (r *RunRepository) ListByDomain(ctx context.Context, dom string, limit int) ([]*domain.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + jobRunColumns + `
		FROM job_runs
		WHERE domain = $1
		ORDER BY start_ts DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, dom, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs by domain: %w", err)
	}
	defer rows.Close()
	return collectJobRuns(rows)
}

func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobRunColumns + ` FROM job_runs ORDER BY start_ts DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()
	return collectJobRuns(rows)
}

func (r *RunRepository) CountByDomain(ctx context.Context, dom string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_runs WHERE domain = $1`, dom).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (r *RunRepository) DeleteByDomain(ctx context.Context, dom string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM job_runs WHERE domain = $1`, dom)
	if err != nil {
		return 0, fmt.Errorf("delete runs by domain: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RunRepository) MarkWorkerLost(ctx context.Context, dom, workerID string) (int64, error) {
	query := `
		UPDATE job_runs
		SET    status = 'failed', end_ts = NOW(), completion_reason = $3
		WHERE  domain = $1 AND worker_id = $2 AND status = 'running'`

	tag, err := r.pool.Exec(ctx, query, dom, workerID, domain.CompletionWorkerLost)
	if err != nil {
		return 0, fmt.Errorf("mark worker lost: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJobRun(row pgx.Row) (*domain.JobRun, error) {
	var (
		run      domain.JobRun
		status   string
		mode     string
		executor string
	)

	err := row.Scan(
		&run.ID, &run.JobID, &run.Domain, &run.User, &run.WorkerID, &status,
		&run.ScheduledTS, &run.StartTS, &run.EndTS, &run.ReturnCode,
		&run.Stdout, &run.Stderr, &run.Slot, &run.AttemptsUsed, &run.RetriesRemaining,
		&mode, &executor, &run.QueueLatencyMS, &run.CompletionReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.ScheduleMode = domain.ScheduleMode(mode)
	run.ExecutorType = domain.ExecutorType(executor)
	return &run, nil
}

func collectJobRuns(rows pgx.Rows) ([]*domain.JobRun, error) {
	var runs []*domain.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
