package repository

import (
	"context"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
)

// Usecases and loops depend on these interfaces so tests can substitute
// fakes and the storage engine stays swappable.
type JobRepository interface {
	Create(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error)
	Update(ctx context.Context, job *domain.JobDefinition) (*domain.JobDefinition, error)
	GetByID(ctx context.Context, jobID string) (*domain.JobDefinition, error)
	ListByDomain(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error)
	// List returns definitions across every domain, newest first.
	// Admin reads use it; everything else stays domain scoped.
	List(ctx context.Context, limit int) ([]*domain.JobDefinition, error)
	Delete(ctx context.Context, jobID string) error
	DeleteByDomain(ctx context.Context, dom string) (int64, error)
	CountByDomain(ctx context.Context, dom string) (int64, error)

	// Ticker methods. Due lists enabled cron and interval jobs whose
	// next_run_at has passed; AdvanceSchedule is the compare-and-set
	// that makes concurrent tickers safe: it only writes when
	// next_run_at still equals prev and reports whether it won.
	Due(ctx context.Context, dom string, now time.Time, limit int) ([]*domain.JobDefinition, error)
	UpcomingSchedules(ctx context.Context, dom string, limit int) ([]*domain.JobDefinition, error)
	AdvanceSchedule(ctx context.Context, jobID string, prev, next *time.Time, enabled bool) (bool, error)
}
