// The server binary is the control plane: HTTP API, dispatcher,
// schedule ticker and failover monitor in one process. Several copies
// can run side by side; every coordination step goes through redis.
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

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hydrajobs/hydra/config"
	"github.com/hydrajobs/hydra/internal/eventbus"
	"github.com/hydrajobs/hydra/internal/health"
	"github.com/hydrajobs/hydra/internal/infrastructure/postgres"
	"github.com/hydrajobs/hydra/internal/infrastructure/redis"
	ctxlog "github.com/hydrajobs/hydra/internal/log"
	"github.com/hydrajobs/hydra/internal/metrics"
	"github.com/hydrajobs/hydra/internal/scheduler"
	httptransport "github.com/hydrajobs/hydra/internal/transport/http"
	"github.com/hydrajobs/hydra/internal/transport/http/handler"
	"github.com/hydrajobs/hydra/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}

	store, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		stop()
		log.Fatalf("redis: %v", err)
	}
	defer store.Close()

	logger.Info("stores connected")

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{
		"postgres": pool,
		"redis":    store,
	}, logger, prometheus.DefaultRegisterer)

	bus := eventbus.New(logger)

	domainRepo := postgres.NewDomainRepository(pool)
	jobRepo := postgres.NewJobRepository(pool)
	runRepo := postgres.NewRunRepository(pool)

	jobUsecase := usecase.NewJobUsecase(jobRepo, runRepo, store, bus)
	adminUsecase := usecase.NewAdminUsecase(domainRepo, jobRepo, runRepo, store)
	workerUsecase := usecase.NewWorkerUsecase(store, cfg.HeartbeatTTL())
	resolver := usecase.NewTokenResolver(domainRepo, store, cfg.AdminToken, cfg.AdminDomain)

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set; /admin surface is unreachable")
	}

	router := httptransport.NewRouter(
		logger,
		resolver,
		cfg.CORSAllowOrigins,
		handler.NewJobHandler(jobUsecase, logger),
		handler.NewRunHandler(jobUsecase, store, logger),
		handler.NewWorkerHandler(workerUsecase, logger),
		handler.NewEventsHandler(bus, logger),
		handler.NewHealthHandler(store, logger),
		handler.NewAdminHandler(adminUsecase, logger),
	)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	dispatcher := scheduler.NewDispatcher(store, jobRepo, bus, logger, cfg.HeartbeatTTL(), cfg.DispatchIdle)
	ticker := scheduler.NewTicker(store, jobRepo, bus, logger, cfg.TickInterval)
	failover := scheduler.NewFailover(store, jobRepo, runRepo, bus, logger, cfg.FailoverInterval, cfg.HeartbeatTTL())

	var loops errgroup.Group
	loops.Go(func() error { dispatcher.Start(ctx); return nil })
	loops.Go(func() error { ticker.Start(ctx); return nil })
	loops.Go(func() error { failover.Start(ctx); return nil })

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	// Loops exit on the canceled signal context; wait so the deferred
	// pool close does not race a final write.
	_ = loops.Wait()
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
