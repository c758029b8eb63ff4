// Package affinity filters candidate workers for a job and picks the
// least loaded one.
package affinity

import (
	"strings"

	"github.com/hydrajobs/hydra/internal/domain"
)

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// Passes reports whether the worker satisfies every affinity clause of
// the job. Empty clauses are wildcards. Matching is case insensitive
// except subnets, which are literal prefixes of the worker subnet.
func Passes(job *domain.JobDefinition, w *domain.WorkerInfo) bool {
	a := job.Affinity

	if len(a.OS) > 0 && !containsFold(a.OS, w.OS) {
		return false
	}
	for _, tag := range a.Tags {
		if !containsFold(w.Tags, tag) {
			return false
		}
	}
	if len(w.AllowedUsers) > 0 && !containsFold(w.AllowedUsers, job.User) {
		return false
	}
	if len(a.Hostnames) > 0 && !containsFold(a.Hostnames, w.Hostname) {
		return false
	}
	if len(a.Subnets) > 0 {
		ok := false
		for _, prefix := range a.Subnets {
			if strings.HasPrefix(w.Subnet, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(a.DeploymentTypes) > 0 && !containsFold(a.DeploymentTypes, w.DeploymentType) {
		return false
	}
	return true
}

// SelectBest returns the worker with the lowest load ratio, breaking ties
// by absolute running count and then input order. Nil for no candidates.
func SelectBest(workers []*domain.WorkerInfo) *domain.WorkerInfo {
	var best *domain.WorkerInfo
	var bestRatio float64

	for _, w := range workers {
		cap := w.MaxConcurrency
		if cap < 1 {
			cap = 1
		}
		ratio := float64(w.CurrentRunning) / float64(cap)
		if best == nil || ratio < bestRatio ||
			(ratio == bestRatio && w.CurrentRunning < best.CurrentRunning) {
			best = w
			bestRatio = ratio
		}
	}
	return best
}
