package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the kiosk adapter.
type Metrics struct {
	Scans           *prometheus.CounterVec
	SuppressedScans prometheus.Counter
}

// New creates and registers the kiosk metrics.
func New() *Metrics {
	return &Metrics{
		Scans: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presenza_kiosk_scans_total",
			Help: "Processed scans by outcome action",
		}, []string{"action"}),
		SuppressedScans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presenza_kiosk_scans_suppressed_total",
			Help: "Scans rejected because another scan was in flight",
		}),
	}
}
