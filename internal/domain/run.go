package domain

import (
	"errors"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// CompletionWorkerLost marks runs whose worker stopped heartbeating while
// they were in flight.
const CompletionWorkerLost = "worker_lost"

type JobRun struct {
	ID       string
	JobID    string
	Domain   string
	User     string
	WorkerID string
	Status   RunStatus

	ScheduledTS time.Time // when the worker picked the job up
	StartTS     time.Time
	EndTS       *time.Time

	ReturnCode *int
	Stdout     string
	Stderr     string

	Slot             int // concurrency slot index on the worker
	AttemptsUsed     int
	RetriesRemaining int

	ScheduleMode     ScheduleMode
	ExecutorType     ExecutorType
	QueueLatencyMS   int64
	CompletionReason string
}

// Duration reports wall time of the run, zero while still running.
func (r *JobRun) Duration() time.Duration {
	if r.EndTS == nil {
		return 0
	}
	return r.EndTS.Sub(r.StartTS)
}
