package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/repository"
)

// WorkerStore is the slice of the coordination store worker management
// needs.
type WorkerStore interface {
	repository.DomainSet
	repository.WorkerRegistry
}

// WorkerUsecase exposes the worker fleet to the API: listing with
// computed liveness and operator state changes.
type WorkerUsecase struct {
	store        WorkerStore
	heartbeatTTL time.Duration
}

func NewWorkerUsecase(store WorkerStore, heartbeatTTL time.Duration) *WorkerUsecase {
	return &WorkerUsecase{store: store, heartbeatTTL: heartbeatTTL}
}

// List returns the workers visible to the caller. Status is recomputed
// from the heartbeat age; the stored value can lag behind a crash until
// the failover monitor notices.
func (u *WorkerUsecase) List(ctx context.Context, scope Scope) ([]*domain.WorkerInfo, error) {
	doms := []string{scope.Domain}
	if scope.Wildcard() {
		var err error
		doms, err = u.store.Domains(ctx)
		if err != nil {
			return nil, fmt.Errorf("list domains: %w", err)
		}
		sort.Strings(doms)
	}

	cutoff := time.Now().Add(-u.heartbeatTTL)
	var workers []*domain.WorkerInfo
	for _, dom := range doms {
		ws, err := u.store.List(ctx, dom)
		if err != nil {
			return nil, fmt.Errorf("list workers for %s: %w", dom, err)
		}
		for _, w := range ws {
			if w.LastHeartbeat.Before(cutoff) {
				w.Status = domain.WorkerOffline
			} else {
				w.Status = domain.WorkerOnline
			}
		}
		workers = append(workers, ws...)
	}
	return workers, nil
}

// SetState records operator intent for one worker: online, draining or
// disabled.
func (u *WorkerUsecase) SetState(ctx context.Context, scope Scope, workerID, state string) error {
	switch state {
	case domain.StateOnline, domain.StateDraining, domain.StateDisabled:
	default:
		return fmt.Errorf("%w: %q", domain.ErrStateInvalid, state)
	}

	if _, err := u.store.Get(ctx, scope.Domain, workerID); err != nil {
		return fmt.Errorf("get worker: %w", err)
	}
	if err := u.store.SetState(ctx, scope.Domain, workerID, state); err != nil {
		return fmt.Errorf("set worker state: %w", err)
	}
	return nil
}
