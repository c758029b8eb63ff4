// The worker binary registers the host in its domain's worker pool,
// heartbeats, pulls deliveries and executes them. It talks to postgres
// for definitions and run records and to redis for everything live.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hydrajobs/hydra/config"
	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/email"
	"github.com/hydrajobs/hydra/internal/executor"
	"github.com/hydrajobs/hydra/internal/health"
	"github.com/hydrajobs/hydra/internal/infrastructure/postgres"
	"github.com/hydrajobs/hydra/internal/infrastructure/redis"
	ctxlog "github.com/hydrajobs/hydra/internal/log"
	"github.com/hydrajobs/hydra/internal/metrics"
	"github.com/hydrajobs/hydra/internal/usecase"
	"github.com/hydrajobs/hydra/internal/worker"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	store, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis: %v", err)
	}
	defer store.Close()

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pool,
		"redis":    store,
	}, logger, prometheus.DefaultRegisterer)

	info := &domain.WorkerInfo{
		ID:             cfg.WorkerID,
		Domain:         cfg.Domain,
		Tags:           cfg.Tags,
		AllowedUsers:   cfg.AllowedUsers,
		Queues:         cfg.Queues,
		MaxConcurrency: cfg.MaxConcurrency,
		State:          cfg.State,
		DeploymentType: cfg.DeploymentType,
	}
	worker.FillHostInfo(info)
	// The dispatcher skips workers whose hash does not match the
	// domain's current token, so a stale credential means silence, not
	// errors.
	if tok := cfg.Token(); tok != "" {
		info.DomainTokenHash = usecase.HashToken(tok)
	}

	rt, err := worker.New(worker.Options{
		Info:           info,
		Store:          store,
		Jobs:           postgres.NewJobRepository(pool),
		Runs:           postgres.NewRunRepository(pool),
		Runner:         executor.NewRunner(logger),
		Notifier:       email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.EmailFrom, logger),
		Logger:         logger,
		DrainTimeout:   cfg.DrainTimeout,
		HeartbeatEvery: cfg.HeartbeatInterval,
	})
	if err != nil {
		stop()
		log.Fatalf("worker: %v", err)
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	// Blocks until the signal context cancels and in-flight runs drained.
	if err := rt.Start(ctx); err != nil {
		stop()
		log.Fatalf("worker: %v", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
