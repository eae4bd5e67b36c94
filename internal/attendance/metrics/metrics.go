package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the attendance state machine.
type Metrics struct {
	CheckIns          *prometheus.CounterVec
	CheckOuts         *prometheus.CounterVec
	ZoneSwitches      *prometheus.CounterVec
	MinuteResets      prometheus.Counter
	RecognizedMinutes prometheus.Counter
	TxConflicts       prometheus.Counter
}

// New creates and registers the attendance metrics.
func New() *Metrics {
	return &Metrics{
		CheckIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presenza_attendance_check_ins_total",
			Help: "Successful check-ins by entry method",
		}, []string{"method"}),
		CheckOuts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presenza_attendance_check_outs_total",
			Help: "Successful check-outs by entry method",
		}, []string{"method"}),
		ZoneSwitches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presenza_attendance_zone_switches_total",
			Help: "Successful composite zone switches by entry method",
		}, []string{"method"}),
		MinuteResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presenza_attendance_minute_resets_total",
			Help: "Administrative minute resets",
		}),
		RecognizedMinutes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presenza_attendance_recognized_minutes_total",
			Help: "Recognized minutes accrued across all settlements",
		}),
		TxConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presenza_attendance_tx_conflicts_total",
			Help: "Transaction conflicts that triggered a retry",
		}),
	}
}
