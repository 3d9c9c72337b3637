package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logreplay_http_requests_total",
		Help: "HTTP requests served, by route template and status",
	}, []string{"method", "path", "status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logreplay_http_request_duration_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	CaptureRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logreplay_capture_records_total",
		Help: "Captured exchanges by pipeline outcome (captured, dropped, persisted, duplicate, failed)",
	}, []string{"outcome"})

	ReplayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logreplay_replay_requests_total",
		Help: "Replay dispatches by outcome",
	}, []string{"outcome"})

	ReplayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "logreplay_replay_duration_seconds",
		Help:    "Elapsed time of replayed requests",
		Buckets: prometheus.DefBuckets,
	})

	PurgedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logreplay_purged_records_total",
		Help: "Records removed by retention purge",
	})

	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logreplay_login_attempts_total",
		Help: "Operator login attempts by outcome",
	}, []string{"outcome"})
)
