package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/hydrajobs/hydra/internal/domain"
)

const (
	overviewPendingLimit  = 100
	overviewScheduleLimit = 50
)

// PendingJob is one queue overview row: the decoded queue entry plus
// whatever the definition still tells us. Name and User stay empty when
// the definition was deleted out from under the queue.
type PendingJob struct {
	JobID    string `json:"job_id"`
	Domain   string `json:"domain"`
	Priority int    `json:"priority"`
	Name     string `json:"name,omitempty"`
	User     string `json:"user,omitempty"`
}

// QueueOverview is the dispatcher-eye view of a scope: what is waiting
// and what fires next.
type QueueOverview struct {
	Pending   []PendingJob
	Schedules []*domain.JobDefinition
}

// QueueOverview returns the top pending entries and the next upcoming
// schedules for the caller's scope. Wildcard admins get the merge
// across every domain.
func (u *JobUsecase) QueueOverview(ctx context.Context, scope Scope) (*QueueOverview, error) {
	doms := []string{scope.Domain}
	if scope.Wildcard() {
		var err error
		doms, err = u.store.Domains(ctx)
		if err != nil {
			return nil, fmt.Errorf("list domains: %w", err)
		}
		sort.Strings(doms)
	}

	overview := &QueueOverview{Pending: []PendingJob{}, Schedules: []*domain.JobDefinition{}}
	for _, dom := range doms {
		entries, err := u.store.PeekPending(ctx, dom, overviewPendingLimit)
		if err != nil {
			return nil, fmt.Errorf("peek pending for %s: %w", dom, err)
		}
		for _, e := range entries {
			row := PendingJob{JobID: e.JobID, Domain: dom, Priority: e.Priority}
			if job, err := u.jobs.GetByID(ctx, e.JobID); err == nil {
				row.Name = job.Name
				row.User = job.User
			}
			overview.Pending = append(overview.Pending, row)
		}

		scheds, err := u.jobs.UpcomingSchedules(ctx, dom, overviewScheduleLimit)
		if err != nil {
			return nil, fmt.Errorf("upcoming schedules for %s: %w", dom, err)
		}
		overview.Schedules = append(overview.Schedules, scheds...)
	}

	if len(doms) > 1 {
		sort.SliceStable(overview.Pending, func(i, j int) bool {
			return overview.Pending[i].Priority > overview.Pending[j].Priority
		})
		sort.SliceStable(overview.Schedules, func(i, j int) bool {
			a, b := overview.Schedules[i].Schedule.NextRunAt, overview.Schedules[j].Schedule.NextRunAt
			if a == nil || b == nil {
				return b == nil && a != nil
			}
			return a.Before(*b)
		})
	}
	if len(overview.Pending) > overviewPendingLimit {
		overview.Pending = overview.Pending[:overviewPendingLimit]
	}
	if len(overview.Schedules) > overviewScheduleLimit {
		overview.Schedules = overview.Schedules[:overviewScheduleLimit]
	}
	return overview, nil
}
