package redis

import (
	"testing"
	"time"
)

func TestPackScore_PriorityDominates(t *testing.T) {
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(365 * 24 * time.Hour)

	// A higher priority enqueued later still outscores a lower priority
	// enqueued long before.
	if PackScore(10, recent) <= PackScore(9, old) {
		t.Fatal("expected priority 10 to outscore priority 9 regardless of age")
	}
}

func TestPackScore_FIFOWithinPriority(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Millisecond)

	if PackScore(5, first) <= PackScore(5, second) {
		t.Fatal("expected earlier enqueue to outscore later one at equal priority")
	}
}

func TestPriorityFromScore_RoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for p := 1; p <= 10; p++ {
		got := PriorityFromScore(PackScore(p, now))
		if got != p {
			t.Fatalf("priority %d round tripped to %d", p, got)
		}
	}
}

func TestKeys_DomainQualified(t *testing.T) {
	cases := map[string]string{
		pendingKey("acme"):           "pending:acme",
		workerQueueKey("acme", "w1"): "job_queue:acme:w1",
		workerKey("acme", "w1"):      "workers:acme:w1",
		heartbeatsKey("acme"):        "worker_heartbeats:acme",
		runningSetKey("acme", "w1"):  "worker_running_set:acme:w1",
		jobRunningKey("acme", "j1"):  "job_running:acme:j1",
		logStreamKey("acme", "r1"):   "log_stream:acme:r1",
		logHistoryKey("acme", "r1"):  "log_stream:acme:r1:history",
		domainTokenKey("acme"):       "token_hash:acme",
		tokenDomainKey("deadbeef"):   "token_hash:deadbeef:domain",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected key %q, got %q", want, got)
		}
	}
}
