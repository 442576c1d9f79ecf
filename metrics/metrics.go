// Package metrics exposes Prometheus instruments for the cron job lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

var (
	deletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenmil",
		Subsystem: "cronjob",
		Name:      "deletes_total",
		Help:      "Cron job delete calls by result.",
	}, []string{"result"})

	schedulerRemovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenmil",
		Subsystem: "cronjob",
		Name:      "scheduler_removals_total",
		Help:      "Best-effort scheduler removals by result.",
	}, []string{"result"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenmil",
		Subsystem: "cronjob",
		Name:      "runs_total",
		Help:      "Cron job runs by status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tenmil",
		Subsystem: "cronjob",
		Name:      "run_duration_seconds",
		Help:      "Duration of cron job runs.",
		Buckets:   prometheus.DefBuckets,
	})

	scheduledJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenmil",
		Subsystem: "scheduler",
		Name:      "jobs",
		Help:      "Jobs currently registered with the scheduler.",
	})
)

// ObserveDelete counts one delete call
func ObserveDelete(result string) {
	deletesTotal.WithLabelValues(result).Inc()
}

// ObserveSchedulerRemoval counts one best-effort scheduler removal
func ObserveSchedulerRemoval(result string) {
	schedulerRemovalsTotal.WithLabelValues(result).Inc()
}

// ObserveRun counts one run and its duration
func ObserveRun(status string, d time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(d.Seconds())
}

// SetScheduledJobs records the number of registered scheduler jobs
func SetScheduledJobs(n int) {
	scheduledJobs.Set(float64(n))
}
