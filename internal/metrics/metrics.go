package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acp_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	AgentsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acp_agents_registered_total",
			Help: "Total agent profiles registered",
		},
	)

	JobsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acp_jobs_submitted_total",
			Help: "Total jobs submitted",
		},
	)

	PhaseEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_phase_events_recorded_total",
			Help: "Total job phase transitions recorded",
		},
		[]string{"phase"},
	)

	BrowseQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acp_browse_queries_total",
			Help: "Total agent directory queries",
		},
	)

	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_validation_rejections_total",
			Help: "Total records rejected by validation",
		},
		[]string{"kind"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acp_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acp_store_latency_seconds",
			Help:    "Record store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"backend", "op"},
	)
)
