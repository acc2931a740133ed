package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_tracker_jobs_submitted_total",
		Help: "Total number of jobs submitted to the worker, by surface",
	}, []string{"surface"})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_tracker_sessions_started_total",
		Help: "Total number of poll sessions started",
	})

	SessionsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_tracker_sessions_succeeded_total",
		Help: "Total number of poll sessions that observed a successful job",
	})

	SessionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_tracker_sessions_failed_total",
		Help: "Total number of poll sessions that observed a failed job",
	})

	SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_tracker_sessions_stopped_total",
		Help: "Total number of poll sessions stopped before reaching a terminal state",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video_tracker_active_sessions",
		Help: "Number of poll sessions currently running",
	})

	StatusQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_tracker_status_queries_total",
		Help: "Total number of status queries issued",
	})

	TransportErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_tracker_status_transport_errors_total",
		Help: "Total number of status queries that failed at the transport level",
	})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "video_tracker_status_query_duration_seconds",
		Help:    "Status query duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
