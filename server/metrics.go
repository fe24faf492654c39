package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequests counts HTTP requests.
	// Labels:
	//   - route: chi 路由模板，例如 "/rank"
	//   - code: HTTP 状态码
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phoenix_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phoenix_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"route"},
	)

	rankCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "phoenix_rank_candidates",
			Help:    "Number of candidates per ranking request",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	// rankErrors counts failed ranking requests.
	// Labels:
	//   - reason: "decode", "not_initialized", "model"
	rankErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phoenix_rank_errors_total",
			Help: "Total number of failed ranking requests",
		},
		[]string{"reason"},
	)

	// cacheLookups counts response cache lookups.
	// Labels:
	//   - result: "hit", "miss", "error"
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phoenix_rank_cache_lookups_total",
			Help: "Total number of ranking response cache lookups",
		},
		[]string{"result"},
	)

	rankerReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phoenix_ranker_ready",
			Help: "1 when the ranker has finished initialization",
		},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phoenix_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
