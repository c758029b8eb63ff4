package redis

import "time"

// Every key is domain qualified so tenants never observe each other's
// state.
const domainsKey = "hydra:domains"

func pendingKey(dom string) string               { return "pending:" + dom }
func workerQueueKey(dom, workerID string) string { return "job_queue:" + dom + ":" + workerID }
func workerKey(dom, workerID string) string      { return "workers:" + dom + ":" + workerID }
func heartbeatsKey(dom string) string            { return "worker_heartbeats:" + dom }
func runningSetKey(dom, workerID string) string {
	return "worker_running_set:" + dom + ":" + workerID
}
func jobRunningKey(dom, jobID string) string { return "job_running:" + dom + ":" + jobID }
func logStreamKey(dom, runID string) string  { return "log_stream:" + dom + ":" + runID }
func logHistoryKey(dom, runID string) string { return logStreamKey(dom, runID) + ":history" }
func domainTokenKey(dom string) string       { return "token_hash:" + dom }
func tokenDomainKey(hash string) string      { return "token_hash:" + hash + ":domain" }

// scoreBase splits a pending score into priority (high bits) and an
// inverted enqueue timestamp (low bits): higher priority always wins and
// earlier enqueues pop first within a priority. 2^43 ms of headroom
// keeps packed values exact in a float64 score.
const scoreBase = int64(1) << 43

// PackScore builds the pending queue score for a priority and enqueue
// time. Larger scores pop sooner.
func PackScore(priority int, enqueuedAt time.Time) float64 {
	return float64(int64(priority)*scoreBase + (scoreBase - enqueuedAt.UnixMilli()))
}

// PriorityFromScore recovers the priority from a packed score.
func PriorityFromScore(score float64) int {
	return int(int64(score) / scoreBase)
}
