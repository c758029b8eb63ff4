package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher metrics

	JobsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "jobs_enqueued_total",
		Help:      "Jobs added to a pending queue, by source.",
	}, []string{"source"}) // api, ticker, failover, manual

	JobsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "jobs_dispatched_total",
		Help:      "Jobs handed to a worker queue, by domain.",
	}, []string{"domain"})

	JobsRequeuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "jobs_requeued_total",
		Help:      "Jobs put back on the pending queue, by reason.",
	}, []string{"reason"}) // no_worker, worker_lost

	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hydra",
		Name:      "dispatch_latency_seconds",
		Help:      "Time to match a popped job with a worker.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// Ticker metrics

	ScheduleFiresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "schedule_fires_total",
		Help:      "Schedules advanced and enqueued by the ticker.",
	})

	ScheduleCASLossesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "schedule_cas_losses_total",
		Help:      "Ticker advances lost to a concurrent ticker.",
	})

	// Worker metrics

	RunsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "runs_completed_total",
		Help:      "Total runs finished, by outcome.",
	}, []string{"outcome"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hydra",
		Name:      "run_duration_seconds",
		Help:      "Wall time of job runs.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300, 900},
	}, []string{"executor"})

	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hydra",
		Name:      "runs_in_flight",
		Help:      "Runs currently executing on this worker.",
	})

	QueueLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hydra",
		Name:      "queue_latency_seconds",
		Help:      "Time from job creation to worker pickup.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	LogChunksPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "log_chunks_published_total",
		Help:      "Output lines published to log streams.",
	})

	// Failover metrics

	FailoverRequeuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "failover_requeued_total",
		Help:      "Jobs recovered from workers that stopped heartbeating.",
	})

	FailoverCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hydra",
		Name:      "failover_cycle_duration_seconds",
		Help:      "Time taken for one failover sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// Event bus metrics

	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "events_dropped_total",
		Help:      "Events dropped because a subscriber queue was full.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hydra",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydra",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		JobsEnqueuedTotal,
		JobsDispatchedTotal,
		JobsRequeuedTotal,
		DispatchLatency,
		ScheduleFiresTotal,
		ScheduleCASLossesTotal,
		RunsCompletedTotal,
		RunDuration,
		RunsInFlight,
		QueueLatency,
		LogChunksPublishedTotal,
		FailoverRequeuedTotal,
		FailoverCycleDuration,
		EventsDropped,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// Handler is the health surface served beside /metrics.
type Handler interface {
	LivenessHandler() http.HandlerFunc
	ReadinessHandler() http.HandlerFunc
}

func NewServer(addr string, checker Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if checker != nil {
		mux.HandleFunc("/livez", checker.LivenessHandler())
		mux.HandleFunc("/readyz", checker.ReadinessHandler())
	}
	return &http.Server{Addr: addr, Handler: mux}
}
