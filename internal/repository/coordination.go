package repository

import (
	"context"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
)

// Coordination interfaces cover the shared fast state: queues, worker
// liveness and log streams. The redis store implements all of them;
// loops and handlers only name the slice they need.

// PoppedJob is the result of a cross-domain priority pop. Score is the
// packed (priority, enqueue time) value so a failed dispatch can requeue
// the job into its original position.
type PoppedJob struct {
	Domain string
	JobID  string
	Score  float64
}

// PendingEntry is one queue overview row.
type PendingEntry struct {
	JobID    string
	Priority int
}

// RunningRecord mirrors the job_running hash for one in-flight job.
type RunningRecord struct {
	RunID     string
	WorkerID  string
	User      string
	Domain    string
	Heartbeat time.Time
}

type DomainSet interface {
	AddDomain(ctx context.Context, dom string) error
	RemoveDomain(ctx context.Context, dom string) error
	Domains(ctx context.Context) ([]string, error)
	// PurgeDomain removes every coordination key of the domain.
	PurgeDomain(ctx context.Context, dom string) error
}

type Queues interface {
	EnqueuePending(ctx context.Context, dom, jobID string, priority int, now time.Time) error
	RequeuePending(ctx context.Context, dom, jobID string, score float64) error
	RemovePending(ctx context.Context, dom, jobID string) error
	// PopMaxPending pops the highest scored entry across the given
	// domains, nil when every queue is empty.
	PopMaxPending(ctx context.Context, domains []string) (*PoppedJob, error)
	PendingLength(ctx context.Context, dom string) (int64, error)
	PeekPending(ctx context.Context, dom string, limit int64) ([]PendingEntry, error)

	PushWorker(ctx context.Context, dom, workerID, jobID string) error
	// PopWorker blocks up to timeout, empty string when nothing arrived.
	PopWorker(ctx context.Context, dom, workerID string, timeout time.Duration) (string, error)
	// DrainWorker atomically empties a worker's delivery queue and
	// returns the job ids that were still waiting in it.
	DrainWorker(ctx context.Context, dom, workerID string) ([]string, error)
}

type WorkerRegistry interface {
	Register(ctx context.Context, w *domain.WorkerInfo) error
	// Heartbeat refreshes liveness, the running counter and the
	// heartbeat field of every tracked running job in one shot.
	Heartbeat(ctx context.Context, dom, workerID string, now time.Time, running []string) error
	List(ctx context.Context, dom string) ([]*domain.WorkerInfo, error)
	Get(ctx context.Context, dom, workerID string) (*domain.WorkerInfo, error)
	SetState(ctx context.Context, dom, workerID, state string) error
	MarkOffline(ctx context.Context, dom, workerID string) error
	IncrRunning(ctx context.Context, dom, workerID string, delta int) (int64, error)
	StaleWorkers(ctx context.Context, dom string, olderThan time.Time) ([]string, error)
	Count(ctx context.Context, dom string) (int64, error)
}

type RunningTracker interface {
	Track(ctx context.Context, dom, workerID, jobID string, rec RunningRecord) error
	Untrack(ctx context.Context, dom, workerID, jobID string) error
	Running(ctx context.Context, dom, workerID string) ([]string, error)
}

type LogStream interface {
	// Publish appends the chunk to the capped history list and fans it
	// out to live subscribers.
	Publish(ctx context.Context, chunk domain.LogChunk) error
	History(ctx context.Context, dom, runID string, limit int64) ([]string, error)
	// Subscribe delivers raw chunk JSON until cancel is called.
	Subscribe(ctx context.Context, dom, runID string) (<-chan string, func(), error)
}

type TokenStore interface {
	SetDomainHash(ctx context.Context, dom, hash string) error
	DomainHash(ctx context.Context, dom string) (string, error)
	DeleteDomainHash(ctx context.Context, dom string) error
	// Reverse cache: token hash to domain, with a short TTL.
	CacheLookup(ctx context.Context, hash string) (string, error)
	CacheStore(ctx context.Context, hash, dom string, ttl time.Duration) error
}
