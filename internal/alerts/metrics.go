package alerts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subwatch"

var (
	alertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Total alert send attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	alertSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "send_duration_seconds",
			Help:      "Time to send an alert",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	dispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dispatch_runs_total",
			Help:      "Total dispatch runs by outcome",
		},
		[]string{"status"},
	)

	dispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dispatch_run_duration_seconds",
			Help:      "Duration of a full dispatch run",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// recordAlertSent records an alert send attempt outcome.
func recordAlertSent(channel, status string) {
	alertsSent.WithLabelValues(channel, status).Inc()
}

// recordAlertDuration records alert send duration.
func recordAlertDuration(channel string, duration time.Duration) {
	alertSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// recordDispatchRun records a completed dispatch run.
func recordDispatchRun(status string, duration time.Duration) {
	dispatchRuns.WithLabelValues(status).Inc()
	dispatchRunDuration.Observe(duration.Seconds())
}
