package httptransport

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/hydrajobs/hydra/internal/transport/http/handler"
	"github.com/hydrajobs/hydra/internal/transport/http/middleware"
)

// NewRouter wires the full API surface. Auth runs globally and resolves
// the caller's domain; /health and /events/stream are exempt so probes
// and dashboards work without a token.
func NewRouter(
	logger *slog.Logger,
	resolver middleware.Resolver,
	corsOrigins []string,
	jobs *handler.JobHandler,
	runs *handler.RunHandler,
	workers *handler.WorkerHandler,
	events *handler.EventsHandler,
	health *handler.HealthHandler,
	admin *handler.AdminHandler,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(corsMiddleware(corsOrigins))
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.Auth(resolver))

	jobRoutes := r.Group("/jobs")
	jobRoutes.POST("", jobs.Create)
	jobRoutes.GET("", jobs.List)
	jobRoutes.POST("/validate", jobs.Validate)
	jobRoutes.POST("/adhoc", jobs.Adhoc)
	jobRoutes.GET("/:id", jobs.GetByID)
	jobRoutes.PUT("/:id", jobs.Update)
	jobRoutes.POST("/:id/run", jobs.RunNow)
	jobRoutes.GET("/:id/runs", jobs.Runs)

	runRoutes := r.Group("/runs")
	runRoutes.GET("/:id", runs.GetByID)
	runRoutes.GET("/:id/stream", runs.Stream)

	r.GET("/history", jobs.History)
	r.GET("/queue/overview", jobs.QueueOverview)
	r.GET("/events/stream", events.Stream)
	r.GET("/health", health.Health)

	workerRoutes := r.Group("/workers")
	workerRoutes.GET("", workers.List)
	workerRoutes.POST("/:id/state", workers.SetState)

	adminRoutes := r.Group("/admin/domains", middleware.RequireAdmin())
	adminRoutes.GET("", admin.List)
	adminRoutes.POST("", admin.Create)
	adminRoutes.PUT("/:domain", admin.Update)
	adminRoutes.POST("/:domain/token", admin.RotateToken)
	adminRoutes.DELETE("/:domain", admin.Delete)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "x-api-key")
	return cors.New(cfg)
}
