package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbs_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rbs_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DateConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rbs_date_conflicts_total",
			Help: "Total booking writes rejected for overlapping dates",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rbs_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	NotifyPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rbs_notify_publish_failures_total",
			Help: "Total failed realtime notification publishes",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rbs_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
