package domain

import (
	"errors"
	"time"
)

var (
	ErrWorkerNotFound = errors.New("worker not found")
	ErrStateInvalid   = errors.New("unknown worker state")
)

// Status is written by the worker itself and the failover monitor; State
// is operator intent set through the API. The dispatcher only targets
// workers that are online on both axes.
const (
	WorkerOnline  = "online"
	WorkerOffline = "offline"

	StateOnline   = "online"
	StateDraining = "draining"
	StateDisabled = "disabled"
)

type WorkerInfo struct {
	ID             string
	Domain         string
	OS             string
	Tags           []string
	AllowedUsers   []string
	Queues         []string
	MaxConcurrency int
	CurrentRunning int
	Status         string
	State          string

	CPUCount       int
	Hostname       string
	IP             string
	Subnet         string // first three octets of IP
	DeploymentType string
	RunUser        string
	Workdir        string

	DomainTokenHash string
	LastHeartbeat   time.Time
}

// Free reports remaining concurrency slots.
func (w *WorkerInfo) Free() int {
	n := w.MaxConcurrency - w.CurrentRunning
	if n < 0 {
		return 0
	}
	return n
}
