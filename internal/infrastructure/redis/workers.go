package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/repository"
)

func joinCSV(items []string) string { return strings.Join(items, ",") }

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func workerFields(w *domain.WorkerInfo) map[string]interface{} {
	return map[string]interface{}{
		"os":                w.OS,
		"domain":            w.Domain,
		"tags":              joinCSV(w.Tags),
		"allowed_users":     joinCSV(w.AllowedUsers),
		"queues":            joinCSV(w.Queues),
		"max_concurrency":   w.MaxConcurrency,
		"current_running":   w.CurrentRunning,
		"status":            w.Status,
		"state":             w.State,
		"cpu_count":         w.CPUCount,
		"hostname":          w.Hostname,
		"ip":                w.IP,
		"subnet":            w.Subnet,
		"deployment_type":   w.DeploymentType,
		"run_user":          w.RunUser,
		"cwd":               w.Workdir,
		"domain_token_hash": w.DomainTokenHash,
	}
}

func parseWorker(id, dom string, fields map[string]string) *domain.WorkerInfo {
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	return &domain.WorkerInfo{
		ID:              id,
		Domain:          dom,
		OS:              fields["os"],
		Tags:            splitCSV(fields["tags"]),
		AllowedUsers:    splitCSV(fields["allowed_users"]),
		Queues:          splitCSV(fields["queues"]),
		MaxConcurrency:  atoi(fields["max_concurrency"]),
		CurrentRunning:  atoi(fields["current_running"]),
		Status:          fields["status"],
		State:           fields["state"],
		CPUCount:        atoi(fields["cpu_count"]),
		Hostname:        fields["hostname"],
		IP:              fields["ip"],
		Subnet:          fields["subnet"],
		DeploymentType:  fields["deployment_type"],
		RunUser:         fields["run_user"],
		Workdir:         fields["cwd"],
		DomainTokenHash: fields["domain_token_hash"],
	}
}

func (s *Store) Register(ctx context.Context, w *domain.WorkerInfo) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, workerKey(w.Domain, w.ID), workerFields(w))
	pipe.SAdd(ctx, domainsKey, w.Domain)
	if !w.LastHeartbeat.IsZero() {
		pipe.ZAdd(ctx, heartbeatsKey(w.Domain), redis.Z{
			Score:  float64(w.LastHeartbeat.Unix()),
			Member: w.ID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	return nil
}

// Heartbeat refreshes the liveness score, corrects current_running to
// the live count and touches every tracked running job in one round
// trip.
func (s *Store) Heartbeat(ctx context.Context, dom, workerID string, now time.Time, running []string) error {
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, heartbeatsKey(dom), redis.Z{Score: float64(now.Unix()), Member: workerID})
	pipe.HSet(ctx, workerKey(dom, workerID), "current_running", len(running))
	for _, jobID := range running {
		pipe.HSet(ctx, jobRunningKey(dom, jobID), "heartbeat", now.Unix())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, dom string) ([]*domain.WorkerInfo, error) {
	prefix := workerKey(dom, "")
	var workers []*domain.WorkerInfo

	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := strings.TrimPrefix(key, prefix)

		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read worker %s: %w", id, err)
		}
		if len(fields) == 0 {
			continue
		}
		w := parseWorker(id, dom, fields)
		if score, err := s.client.ZScore(ctx, heartbeatsKey(dom), id).Result(); err == nil {
			w.LastHeartbeat = time.Unix(int64(score), 0).UTC()
		}
		workers = append(workers, w)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan workers: %w", err)
	}
	return workers, nil
}

func (s *Store) Get(ctx context.Context, dom, workerID string) (*domain.WorkerInfo, error) {
	fields, err := s.client.HGetAll(ctx, workerKey(dom, workerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read worker: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrWorkerNotFound
	}
	w := parseWorker(workerID, dom, fields)
	if score, err := s.client.ZScore(ctx, heartbeatsKey(dom), workerID).Result(); err == nil {
		w.LastHeartbeat = time.Unix(int64(score), 0).UTC()
	}
	return w, nil
}

func (s *Store) SetState(ctx context.Context, dom, workerID, state string) error {
	exists, err := s.client.Exists(ctx, workerKey(dom, workerID)).Result()
	if err != nil {
		return fmt.Errorf("check worker: %w", err)
	}
	if exists == 0 {
		return domain.ErrWorkerNotFound
	}
	if err := s.client.HSet(ctx, workerKey(dom, workerID), "state", state).Err(); err != nil {
		return fmt.Errorf("set worker state: %w", err)
	}
	return nil
}

// MarkOffline zeroes the running counter and flips status. The hash
// entry itself survives so a returning worker keeps its identity.
func (s *Store) MarkOffline(ctx context.Context, dom, workerID string) error {
	err := s.client.HSet(ctx, workerKey(dom, workerID),
		"status", domain.WorkerOffline, "current_running", 0).Err()
	if err != nil {
		return fmt.Errorf("mark worker offline: %w", err)
	}
	return nil
}

func (s *Store) IncrRunning(ctx context.Context, dom, workerID string, delta int) (int64, error) {
	n, err := s.client.HIncrBy(ctx, workerKey(dom, workerID), "current_running", int64(delta)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr running: %w", err)
	}
	return n, nil
}

func (s *Store) StaleWorkers(ctx context.Context, dom string, olderThan time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, heartbeatsKey(dom), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", olderThan.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stale workers: %w", err)
	}
	return ids, nil
}

func (s *Store) Count(ctx context.Context, dom string) (int64, error) {
	n, err := s.client.ZCard(ctx, heartbeatsKey(dom)).Result()
	if err != nil {
		return 0, fmt.Errorf("count workers: %w", err)
	}
	return n, nil
}

// RunningTracker

func (s *Store) Track(ctx context.Context, dom, workerID, jobID string, rec repository.RunningRecord) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, runningSetKey(dom, workerID), jobID)
	pipe.HSet(ctx, jobRunningKey(dom, jobID), map[string]interface{}{
		"run_id":    rec.RunID,
		"worker_id": rec.WorkerID,
		"user":      rec.User,
		"domain":    rec.Domain,
		"heartbeat": rec.Heartbeat.Unix(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("track running: %w", err)
	}
	return nil
}

func (s *Store) Untrack(ctx context.Context, dom, workerID, jobID string) error {
	pipe := s.client.Pipeline()
	pipe.SRem(ctx, runningSetKey(dom, workerID), jobID)
	pipe.Del(ctx, jobRunningKey(dom, jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("untrack running: %w", err)
	}
	return nil
}

func (s *Store) Running(ctx context.Context, dom, workerID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, runningSetKey(dom, workerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("running jobs: %w", err)
	}
	return ids, nil
}
