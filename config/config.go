package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config drives the control-plane binary: API server, dispatcher,
// schedule ticker and failover monitor.
type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9091"`

	// AdminToken unlocks the /admin surface and cross-domain reads.
	// Empty disables the admin bypass entirely.
	AdminToken  string `env:"ADMIN_TOKEN"`
	AdminDomain string `env:"ADMIN_DOMAIN" envDefault:"admin"`

	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`

	HeartbeatTTLSec  int           `env:"SCHEDULER_HEARTBEAT_TTL" envDefault:"10" validate:"min=1,max=3600"`
	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"1s" validate:"min=100ms,max=1m"`
	FailoverInterval time.Duration `env:"FAILOVER_INTERVAL" envDefault:"2s" validate:"min=100ms,max=1m"`
	DispatchIdle     time.Duration `env:"DISPATCH_IDLE_SLEEP" envDefault:"1s" validate:"min=10ms,max=30s"`
}

func (c *Config) HeartbeatTTL() time.Duration {
	return time.Duration(c.HeartbeatTTLSec) * time.Second
}

func (c *Config) SlogLevel() slog.Level {
	return slogLevel(c.LogLevel)
}

// WorkerConfig drives the worker binary. WORKER_DOMAIN_TOKEN falls back
// to API_TOKEN so a worker can reuse the same credential clients use.
type WorkerConfig struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	WorkerID    string `env:"WORKER_ID"`
	Domain      string `env:"WORKER_DOMAIN" envDefault:"default" validate:"required"`
	DomainToken string `env:"WORKER_DOMAIN_TOKEN"`
	APIToken    string `env:"API_TOKEN"`

	Tags           []string `env:"WORKER_TAGS" envSeparator:","`
	AllowedUsers   []string `env:"ALLOWED_USERS" envSeparator:","`
	Queues         []string `env:"WORKER_QUEUES" envDefault:"default" envSeparator:","`
	MaxConcurrency int      `env:"MAX_CONCURRENCY" envDefault:"4" validate:"min=1,max=256"`
	State          string   `env:"WORKER_STATE" envDefault:"online" validate:"oneof=online draining disabled"`
	DeploymentType string   `env:"DEPLOYMENT_TYPE" envDefault:"baremetal"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9092"`

	HeartbeatTTLSec   int           `env:"SCHEDULER_HEARTBEAT_TTL" envDefault:"10" validate:"min=1,max=3600"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"2s" validate:"min=500ms,max=30s"`
	DrainTimeout      time.Duration `env:"DRAIN_TIMEOUT" envDefault:"30s" validate:"min=1s,max=10m"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	EmailFrom    string `env:"EMAIL_FROM"`
}

// Token resolves the effective domain token, empty when the domain runs
// open (no token hash set).
func (c *WorkerConfig) Token() string {
	if c.DomainToken != "" {
		return c.DomainToken
	}
	return c.APIToken
}

func (c *WorkerConfig) SlogLevel() slog.Level {
	return slogLevel(c.LogLevel)
}

func (c *WorkerConfig) HeartbeatTTL() time.Duration {
	return time.Duration(c.HeartbeatTTLSec) * time.Second
}

func slogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func LoadWorker() (*WorkerConfig, error) {
	loadDotenv()

	cfg := &WorkerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = defaultWorkerID()
	}
	return cfg, nil
}

// loadDotenv pulls in a local .env when one exists; absence is normal
// outside development.
func loadDotenv() {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "warning: load .env: %v\n", err)
		}
	}
}

// defaultWorkerID derives a stable-ish identity from the host plus a
// short random suffix, so two workers on one box never collide.
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	host = strings.ToLower(strings.Split(host, ".")[0])
	return host + "-" + uuid.NewString()[:8]
}
