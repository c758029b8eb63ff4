package repository

import (
	"context"

	"github.com/hydrajobs/hydra/internal/domain"
)

type RunRepository interface {
	Create(ctx context.Context, run *domain.JobRun) (*domain.JobRun, error)
	Finish(ctx context.Context, run *domain.JobRun) error
	GetByID(ctx context.Context, runID string) (*domain.JobRun, error)
	ListByJob(ctx context.Context, jobID string, limit int) ([]*domain.JobRun, error)
	ListByDomain(ctx context.Context, dom string, limit int) ([]*domain.JobRun, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error)
	CountByDomain(ctx context.Context, dom string) (int64, error)
	DeleteByDomain(ctx context.Context, dom string) (int64, error)

	// MarkWorkerLost fails every running run owned by the worker and
	// returns how many were updated. Used by the failover monitor.
	MarkWorkerLost(ctx context.Context, dom, workerID string) (int64, error)
}
