package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reminder dispatch metrics
	remindersDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_dispatched_total",
		Help: "Total reminder dispatch outcomes",
	}, []string{
		"status", // sent, failed, skipped
	})

	// Renewal sweep metrics
	renewalsAdvancedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewals_advanced_total",
		Help: "Total subscriptions whose renewal date was advanced by the sweeper",
	})

	// Pending email retry metrics
	emailRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "email_retries_total",
		Help: "Total pending email retry attempts",
	}, []string{
		"status", // sent, failed, exhausted
	})

	// Periodic job metrics
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "job_runs_total",
		Help: "Total periodic job runs",
	}, []string{
		"job",    // dispatcher, sweeper, retry_queue
		"status", // completed, failed, skipped
	})

	jobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Time spent in one periodic job run",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{
		"job",
	})
)

// RecordReminderDispatch records the outcome of one reminder dispatch
func RecordReminderDispatch(status string) {
	remindersDispatchedTotal.WithLabelValues(status).Inc()
}

// RecordRenewalAdvanced records one renewal date advanced by the sweeper
func RecordRenewalAdvanced() {
	renewalsAdvancedTotal.Inc()
}

// RecordEmailRetry records the outcome of one pending email retry attempt
func RecordEmailRetry(status string) {
	emailRetriesTotal.WithLabelValues(status).Inc()
}

// RecordJobRun records the outcome and duration of one periodic job run
func RecordJobRun(job, status string, seconds float64) {
	jobRunsTotal.WithLabelValues(job, status).Inc()
	if status != "skipped" {
		jobDurationSeconds.WithLabelValues(job).Observe(seconds)
	}
}
