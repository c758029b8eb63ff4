package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hydrajobs/hydra/internal/domain"
)

const jobDefinitionColumns = `
	id, domain, name, username, queue, priority, retries, timeout_seconds, notify_email,
	affinity, executor, source, completion,
	schedule_mode, schedule_cron, schedule_interval_seconds, schedule_start_at,
	schedule_end_at, schedule_next_run_at, schedule_timezone, schedule_enabled,
	created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
	affinity, executor, source, completion, err := marshalConfigs(job)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO job_definitions (
			id, domain, name, username, queue, priority, retries, timeout_seconds, notify_email,
			affinity, executor, source, completion,
			schedule_mode, schedule_cron, schedule_interval_seconds, schedule_start_at,
			schedule_end_at, schedule_next_run_at, schedule_timezone, schedule_enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		          $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING ` + jobDefinitionColumns

	row := r.pool.QueryRow(ctx, query,
		job.ID, job.Domain, job.Name, job.User, job.Queue,
		job.Priority, job.Retries, job.TimeoutSeconds, job.NotifyEmail,
		affinity, executor, source, completion,
		string(job.Schedule.Mode), job.Schedule.Cron, job.Schedule.IntervalSeconds,
		job.Schedule.StartAt, job.Schedule.EndAt, job.Schedule.NextRunAt,
		job.Schedule.Timezone, job.Schedule.Enabled,
	)

	created, err := scanJobDefinition(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: id %s", domain.ErrJobInvalid, job.ID)
		}
		return nil, err
	}
	return created, nil
}

func (r *JobRepository) Update(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error) {
	affinity, executor, source, completion, err := marshalConfigs(job)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE job_definitions
		SET    name = $2, username = $3, queue = $4, priority = $5, retries = $6,
		       timeout_seconds = $7, notify_email = $8,
		       affinity = $9, executor = $10, source = $11, completion = $12,
		       schedule_mode = $13, schedule_cron = $14, schedule_interval_seconds = $15,
		       schedule_start_at = $16, schedule_end_at = $17, schedule_next_run_at = $18,
		       schedule_timezone = $19, schedule_enabled = $20,
		       updated_at = NOW()
		WHERE  id = $1
		RETURNING ` + jobDefinitionColumns

	row := r.pool.QueryRow(ctx, query,
		job.ID, job.Name, job.User, job.Queue, job.Priority, job.Retries,
		job.TimeoutSeconds, job.NotifyEmail,
		affinity, executor, source, completion,
		string(job.Schedule.Mode), job.Schedule.Cron, job.Schedule.IntervalSeconds,
		job.Schedule.StartAt, job.Schedule.EndAt, job.Schedule.NextRunAt,
		job.Schedule.Timezone, job.Schedule.Enabled,
	)
	return scanJobDefinition(row)
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*domain.JobDefinition, error) {
	query := `SELECT ` + jobDefinitionColumns + ` FROM job_definitions WHERE id = $1`
	return scanJobDefinition(r.pool.QueryRow(ctx, query, jobID))
}

func (r *JobRepository) ListByDomain(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT ` + jobDefinitionColumns + `
		FROM job_definitions
		WHERE domain = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, dom, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobDefinitions(rows)
}

func (r *JobRepository) List(ctx context.Context, limit int) ([]*domain.JobDefinition, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT ` + jobDefinitionColumns + `
		FROM job_definitions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobDefinitions(rows)
}

func (r *JobRepository) Delete(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM job_definitions WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) DeleteByDomain(ctx context.Context, dom string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM job_definitions WHERE domain = $1`, dom)
	if err != nil {
		return 0, fmt.Errorf("delete jobs by domain: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepository) CountByDomain(ctx context.Context, dom string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_definitions WHERE domain = $1`, dom).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (r *JobRepository) Due(ctx context.Context, dom string, now time.Time, limit int) ([]*domain.JobDefinition, error) {
	query := `
		SELECT ` + jobDefinitionColumns + `
		FROM job_definitions
		WHERE domain = $1
		  AND schedule_enabled
		  AND schedule_mode IN ('cron', 'interval')
		  AND schedule_next_run_at IS NOT NULL
		  AND schedule_next_run_at <= $2
		ORDER BY schedule_next_run_at ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, dom, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobDefinitions(rows)
}

func (r *JobRepository) UpcomingSchedules(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error) {
	query := `
		SELECT ` + jobDefinitionColumns + `
		FROM job_definitions
		WHERE domain = $1
		  AND schedule_enabled
		  AND schedule_next_run_at IS NOT NULL
		ORDER BY schedule_next_run_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, dom, limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming schedules: %w", err)
	}
	defer rows.Close()
	return collectJobDefinitions(rows)
}

// AdvanceSchedule writes the next fire time only when next_run_at still
// holds the value this ticker read. Losing the race is not an error;
// the caller skips the enqueue.
func (r *JobRepository) AdvanceSchedule(ctx context.Context, jobID string, prev, next *time.Time, enabled bool) (bool, error) {
	query := `
		UPDATE job_definitions
		SET    schedule_next_run_at = $2,
		       schedule_enabled = $3,
		       updated_at = NOW()
		WHERE  id = $1
		  AND  schedule_next_run_at IS NOT DISTINCT FROM $4`

	tag, err := r.pool.Exec(ctx, query, jobID, next, enabled, prev)
	if err != nil {
		return false, fmt.Errorf("advance schedule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func marshalConfigs(job *domain.JobDefinition) (affinity, executor, source, completion []byte, err error) {
	if affinity, err = json.Marshal(job.Affinity); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal affinity: %w", err)
	}
	if executor, err = json.Marshal(job.Executor); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal executor: %w", err)
	}
	if job.Source != nil {
		if source, err = json.Marshal(job.Source); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal source: %w", err)
		}
	}
	if completion, err = json.Marshal(job.Completion); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal completion: %w", err)
	}
	return affinity, executor, source, completion, nil
}

func scanJobDefinition(row pgx.Row) (*domain.JobDefinition, error) {
	var (
		j          domain.JobDefinition
		mode       string
		affinity   []byte
		executor   []byte
		source     []byte
		completion []byte
	)

	err := row.Scan(
		&j.ID, &j.Domain, &j.Name, &j.User, &j.Queue, &j.Priority, &j.Retries,
		&j.TimeoutSeconds, &j.NotifyEmail,
		&affinity, &executor, &source, &completion,
		&mode, &j.Schedule.Cron, &j.Schedule.IntervalSeconds, &j.Schedule.StartAt,
		&j.Schedule.EndAt, &j.Schedule.NextRunAt, &j.Schedule.Timezone, &j.Schedule.Enabled,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job definition: %w", err)
	}

	j.Schedule.Mode = domain.ScheduleMode(mode)
	if err := json.Unmarshal(affinity, &j.Affinity); err != nil {
		return nil, fmt.Errorf("unmarshal affinity: %w", err)
	}
	if err := json.Unmarshal(executor, &j.Executor); err != nil {
		return nil, fmt.Errorf("unmarshal executor: %w", err)
	}
	if len(source) > 0 {
		var s domain.SourceConfig
		if err := json.Unmarshal(source, &s); err != nil {
			return nil, fmt.Errorf("unmarshal source: %w", err)
		}
		j.Source = &s
	}
	if err := json.Unmarshal(completion, &j.Completion); err != nil {
		return nil, fmt.Errorf("unmarshal completion: %w", err)
	}
	return &j, nil
}

func collectJobDefinitions(rows pgx.Rows) ([]*domain.JobDefinition, error) {
	var jobs []*domain.JobDefinition
	for rows.Next() {
		j, err := scanJobDefinition(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job definitions: %w", err)
	}
	return jobs, nil
}
