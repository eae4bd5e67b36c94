package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the live feed refresher.
type Metrics struct {
	RefreshDuration    prometheus.Histogram
	SnapshotsPublished prometheus.Counter
}

// New creates and registers the feed metrics.
func New() *Metrics {
	return &Metrics{
		RefreshDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "presenza_feed_refresh_duration_seconds",
			Help:    "Latency of one live projection refresh",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		SnapshotsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presenza_feed_snapshots_published_total",
			Help: "Snapshots published to the live feed",
		}),
	}
}
