package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EpisodesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundl_episodes_enqueued_total",
		Help: "Total number of episodes added to the queue",
	})

	EpisodesRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundl_episodes_retried_total",
		Help: "Total number of failed episodes queued again",
	})

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fundl_queue_length",
		Help: "Number of episodes currently in the queue",
	})

	ActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fundl_active_transfers",
		Help: "Number of transfers currently running",
	})

	TransfersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundl_transfers_completed_total",
		Help: "Total number of transfers completed",
	})

	TransfersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundl_transfers_failed_total",
		Help: "Total number of transfers failed",
	})

	TransferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fundl_transfer_duration_seconds",
		Help:    "Transfer duration in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundl_http_requests_total",
		Help: "Total number of API requests by route and status class",
	}, []string{"method", "route", "class"})

	HTTPPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundl_http_panics_total",
		Help: "Total number of API handler panics recovered",
	})
)
