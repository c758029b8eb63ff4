// seed prepares a local dev environment: the default domain with a
// known token plus a spread of job definitions covering the executors,
// schedule modes and failure paths. Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/infrastructure/postgres"
	"github.com/hydrajobs/hydra/internal/infrastructure/redis"
	"github.com/hydrajobs/hydra/internal/usecase"
)

const (
	devDomain = "default"
	devToken  = "hydra-dev-token"
)

var seedJobs = []domain.JobDefinition{
	// Happy path
	{
		ID: "seed-001", Name: "hello-shell", User: "dev", Priority: 5,
		Executor: domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "echo hello from hydra"},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: true},
	},
	{
		ID: "seed-002", Name: "env-dump", User: "dev", Priority: 3,
		Executor: domain.ExecutorConfig{
			Type:   domain.ExecutorShell,
			Script: "echo running as $SEED_ROLE",
			Env:    map[string]string{"SEED_ROLE": "demo"},
		},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: true},
	},
	{
		ID: "seed-003", Name: "uname-external", User: "dev", Priority: 5,
		Executor: domain.ExecutorConfig{Type: domain.ExecutorExternal, Command: "uname", Args: []string{"-a"}},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: true},
	},

	// Fails after retries: exit 3 is not in the accepted set
	{
		ID: "seed-004", Name: "flaky-exit", User: "dev", Priority: 6, Retries: 2,
		Executor: domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "echo attempt; exit 3"},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: true},
	},

	// Killed by timeout: sleeps longer than its budget
	{
		ID: "seed-005", Name: "sleepy-timeout", User: "dev", Priority: 4, TimeoutSeconds: 5,
		Executor: domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "sleep 45"},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: true},
	},

	// Succeeds only because completion accepts exit 1 and the marker
	{
		ID: "seed-006", Name: "completion-marker", User: "dev", Priority: 5,
		Executor:   domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "echo RESULT=ok; exit 1"},
		Schedule:   domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: true},
		Completion: domain.CompletionCriteria{ExitCodes: []int{0, 1}, StdoutContains: []string{"RESULT=ok"}},
	},

	// Recurring
	{
		ID: "seed-007", Name: "minute-pulse", User: "dev", Priority: 2,
		Executor: domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "date -u"},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleInterval, IntervalSeconds: 60, Enabled: true},
	},
	{
		ID: "seed-008", Name: "threeminute-report", User: "dev", Priority: 5,
		Executor: domain.ExecutorConfig{
			Type:   domain.ExecutorBatch,
			Script: "echo report start\ndf -h | head -3\necho report done",
		},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleCron, Cron: "*/3 * * * *", Enabled: true},
	},
	{
		ID: "seed-009", Name: "python-squares", User: "dev", Priority: 7,
		Executor: domain.ExecutorConfig{
			Type: domain.ExecutorPython,
			Code: "for n in range(5):\n    print(n, n * n)\n",
		},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleInterval, IntervalSeconds: 120, Enabled: true},
	},

	// Stays pending unless a worker carries the gpu tag
	{
		ID: "seed-010", Name: "gpu-only", User: "dev", Priority: 9,
		Affinity: domain.Affinity{Tags: []string{"gpu"}},
		Executor: domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "echo found a gpu worker"},
		Schedule: domain.ScheduleConfig{Mode: domain.ScheduleImmediate, Enabled: true},
	},
}

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store, err := redis.New(ctx, redisURL)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = store.Close() }()

	domains := postgres.NewDomainRepository(pool)
	jobs := postgres.NewJobRepository(pool)
	hash := usecase.HashToken(devToken)

	// Upsert the dev domain and pin its token so re-runs stay usable.
	_, err = domains.Create(ctx, &domain.Domain{
		Name:        devDomain,
		DisplayName: "Development",
		Description: "seeded local playground",
		TokenHash:   hash,
	})
	switch {
	case errors.Is(err, domain.ErrDomainExists):
		if err := domains.SetTokenHash(ctx, devDomain, hash); err != nil {
			return fmt.Errorf("reset domain token: %w", err)
		}
	case err != nil:
		return fmt.Errorf("create domain: %w", err)
	}
	if err := store.AddDomain(ctx, devDomain); err != nil {
		return fmt.Errorf("register domain: %w", err)
	}
	if err := store.SetDomainHash(ctx, devDomain, hash); err != nil {
		return fmt.Errorf("mirror token hash: %w", err)
	}

	now := time.Now().UTC()
	var inserted, skipped, enqueued int
	for _, def := range seedJobs {
		if _, err := jobs.GetByID(ctx, def.ID); err == nil {
			skipped++
			continue
		} else if !errors.Is(err, domain.ErrJobNotFound) {
			return fmt.Errorf("check job %s: %w", def.ID, err)
		}

		normalized, verrs := usecase.ValidateDefinition(ctx, def, now)
		if verrs != nil {
			return fmt.Errorf("seed job %s is invalid: %w", def.ID, verrs)
		}
		normalized.ID = def.ID
		normalized.Domain = devDomain

		job, err := jobs.Create(ctx, &normalized)
		if err != nil {
			return fmt.Errorf("insert job %s: %w", def.ID, err)
		}
		inserted++

		if job.Schedule.Mode == domain.ScheduleImmediate && job.Schedule.Enabled {
			if err := store.EnqueuePending(ctx, devDomain, job.ID, job.Priority, time.Now()); err != nil {
				return fmt.Errorf("enqueue job %s: %w", job.ID, err)
			}
			enqueued++
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Domain:       %s\n", devDomain)
	fmt.Printf("  Token:        %s\n", devToken)
	fmt.Printf("  Jobs created: %d  (skipped %d already existing, %d enqueued)\n", inserted, skipped, enqueued)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Start the control plane and a worker:")
	fmt.Println()
	fmt.Println("    go run ./cmd/server")
	fmt.Printf("    WORKER_DOMAIN=%s WORKER_DOMAIN_TOKEN=%s go run ./cmd/worker\n", devDomain, devToken)
	fmt.Println()
	fmt.Println("  Watch the queue drain and history fill:")
	fmt.Println()
	fmt.Printf("    curl -s http://localhost:8080/queue/overview -H 'x-api-key: %s'\n", devToken)
	fmt.Printf("    curl -s http://localhost:8080/history -H 'x-api-key: %s'\n", devToken)
	fmt.Println()
	fmt.Println("  Stream logs of a run (grab a run id from /history):")
	fmt.Println()
	fmt.Printf("    curl -N 'http://localhost:8080/runs/RUN_ID/stream?token=%s'\n", devToken)
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    seed-001..003            ->  succeed on the first worker")
	fmt.Println("    seed-004                 ->  fails after 3 attempts (exit 3)")
	fmt.Println("    seed-005                 ->  killed by its 5s timeout")
	fmt.Println("    seed-006                 ->  succeeds via completion criteria despite exit 1")
	fmt.Println("    seed-007..009            ->  re-fire on their schedules")
	fmt.Println("    seed-010                 ->  stays pending until a worker has the gpu tag")

	return nil
}
