package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hydrajobs/hydra/internal/repository"
)

// popMaxScript pops the single highest scored member across all given
// pending queues atomically, so concurrent dispatchers never double
// dispatch and priority order holds across domains. The raw score string
// is returned untouched to avoid float reformatting.
var popMaxScript = redis.NewScript(`
local best_key = nil
local best_member = nil
local best_raw = nil
local best_num = nil
for i = 1, #KEYS do
	local entry = redis.call("ZRANGE", KEYS[i], -1, -1, "WITHSCORES")
	if entry[1] then
		local num = tonumber(entry[2])
		if best_num == nil or num > best_num then
			best_key = KEYS[i]
			best_member = entry[1]
			best_raw = entry[2]
			best_num = num
		end
	end
end
if not best_key then
	return false
end
redis.call("ZREM", best_key, best_member)
return {best_key, best_member, best_raw}
`)

// EnqueuePending adds the job to its domain queue. NX keeps the original
// position of a job that is already pending.
func (s *Store) EnqueuePending(ctx context.Context, dom, jobID string, priority int, now time.Time) error {
	err := s.client.ZAddNX(ctx, pendingKey(dom), redis.Z{
		Score:  PackScore(priority, now),
		Member: jobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue pending: %w", err)
	}
	return nil
}

// RequeuePending restores a popped entry with its exact original score.
func (s *Store) RequeuePending(ctx context.Context, dom, jobID string, score float64) error {
	err := s.client.ZAdd(ctx, pendingKey(dom), redis.Z{Score: score, Member: jobID}).Err()
	if err != nil {
		return fmt.Errorf("requeue pending: %w", err)
	}
	return nil
}

func (s *Store) RemovePending(ctx context.Context, dom, jobID string) error {
	if err := s.client.ZRem(ctx, pendingKey(dom), jobID).Err(); err != nil {
		return fmt.Errorf("remove pending: %w", err)
	}
	return nil
}

func (s *Store) PopMaxPending(ctx context.Context, domains []string) (*repository.PoppedJob, error) {
	if len(domains) == 0 {
		return nil, nil
	}
	keys := make([]string, len(domains))
	for i, d := range domains {
		keys[i] = pendingKey(d)
	}

	res, err := popMaxScript.Run(ctx, s.client, keys).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop pending: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return nil, fmt.Errorf("pop pending: unexpected reply %v", res)
	}
	key, _ := vals[0].(string)
	member, _ := vals[1].(string)
	raw, _ := vals[2].(string)

	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("pop pending: parse score %q: %w", raw, err)
	}
	return &repository.PoppedJob{
		Domain: strings.TrimPrefix(key, "pending:"),
		JobID:  member,
		Score:  score,
	}, nil
}

func (s *Store) PendingLength(ctx context.Context, dom string) (int64, error) {
	n, err := s.client.ZCard(ctx, pendingKey(dom)).Result()
	if err != nil {
		return 0, fmt.Errorf("pending length: %w", err)
	}
	return n, nil
}

func (s *Store) PeekPending(ctx context.Context, dom string, limit int64) ([]repository.PendingEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, pendingKey(dom), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("peek pending: %w", err)
	}

	entries := make([]repository.PendingEntry, 0, len(zs))
	for _, z := range zs {
		jobID, _ := z.Member.(string)
		entries = append(entries, repository.PendingEntry{
			JobID:    jobID,
			Priority: PriorityFromScore(z.Score),
		})
	}
	return entries, nil
}

func (s *Store) PushWorker(ctx context.Context, dom, workerID, jobID string) error {
	if err := s.client.RPush(ctx, workerQueueKey(dom, workerID), jobID).Err(); err != nil {
		return fmt.Errorf("push worker queue: %w", err)
	}
	return nil
}

// PopWorker blocks up to timeout on the worker's queue. An empty string
// means nothing arrived.
func (s *Store) PopWorker(ctx context.Context, dom, workerID string, timeout time.Duration) (string, error) {
	res, err := s.client.BLPop(ctx, timeout, workerQueueKey(dom, workerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("pop worker queue: %w", err)
	}
	if len(res) != 2 {
		return "", nil
	}
	return res[1], nil
}

// DrainWorker empties a worker's delivery queue and returns what was
// still waiting. The transaction keeps a concurrent dispatcher push from
// slipping between the read and the delete.
func (s *Store) DrainWorker(ctx context.Context, dom, workerID string) ([]string, error) {
	key := workerQueueKey(dom, workerID)

	var list *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		list = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain worker queue: %w", err)
	}
	return list.Val(), nil
}
