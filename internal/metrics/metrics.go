package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesound_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sharesound_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesound_rate_limited_total",
		Help: "Total number of requests rejected by a rate limiter",
	}, []string{"limiter"})
)

// Board metrics
var (
	PostsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharesound_posts_submitted_total",
		Help: "Total number of accepted submissions",
	})

	SubmissionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesound_submissions_rejected_total",
		Help: "Total number of submissions rejected by validation",
	}, []string{"reason"})

	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesound_reports_total",
		Help: "Total number of reports received",
	}, []string{"outcome"})

	PostsRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharesound_posts_removed_total",
		Help: "Total number of posts removed",
	}, []string{"reason"})

	EmbedFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharesound_embed_fallbacks_total",
		Help: "Total number of posts rendered as a plain link because no player id could be extracted",
	})

	ActivePosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sharesound_active_posts",
		Help: "Number of active posts returned by the last listing",
	})

	StoredPosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sharesound_stored_posts",
		Help: "Number of posts in the store, including expired posts not yet swept",
	})
)

// Sweeper metrics
var (
	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharesound_sweep_runs_total",
		Help: "Total number of expiry sweeps",
	})

	SweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharesound_sweep_errors_total",
		Help: "Total number of failed expiry sweeps",
	})
)

// Live metrics
var (
	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sharesound_live_clients",
		Help: "Number of connected live update clients",
	})

	LiveEventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sharesound_live_events_dropped_total",
		Help: "Total number of events dropped for slow live clients",
	})
)

// NormalizePath collapses ids and static asset paths so request metrics keep
// a bounded label set.
func NormalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/report/"):
		return "/report/:id"
	case path == "/post/":
		return "/post"
	case path == "/", path == "/post", path == "/api/posts", path == "/api/posts/live",
		path == "/health", path == "/metrics":
		return path
	default:
		return "/static/*"
	}
}
