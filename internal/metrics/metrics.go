// Package metrics provides Prometheus instrumentation for the long-running
// watch loops.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled bool

	// Submission metrics
	submissionsTotal *prometheus.CounterVec

	// Job tracker metrics
	jobPollsTotal      *prometheus.CounterVec
	jobsCompletedTotal *prometheus.CounterVec

	// External verifier metrics
	importChecksTotal *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool) {
	enabled = enabledFlag

	if !enabled {
		return
	}

	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verimatch_submissions_total",
			Help: "Total number of verification submissions",
		},
		[]string{"method", "status"},
	)

	jobPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verimatch_job_polls_total",
			Help: "Total number of job status polls",
		},
		[]string{"status"},
	)

	jobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verimatch_jobs_completed_total",
			Help: "Total number of jobs reaching a terminal state",
		},
		[]string{"outcome"},
	)

	importChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verimatch_import_checks_total",
			Help: "Total number of external verifier status checks",
		},
		[]string{"verifier", "state"},
	)
}

// RecordSubmission counts a submission attempt by method and outcome.
func RecordSubmission(method, status string) {
	if !enabled {
		return
	}
	submissionsTotal.WithLabelValues(method, status).Inc()
}

// RecordJobPoll counts one poll of a pending job.
func RecordJobPoll(status string) {
	if !enabled {
		return
	}
	jobPollsTotal.WithLabelValues(status).Inc()
}

// RecordJobCompleted counts a job transition to a terminal state.
func RecordJobCompleted(outcome string) {
	if !enabled {
		return
	}
	jobsCompletedTotal.WithLabelValues(outcome).Inc()
}

// RecordImportCheck counts one external verifier status check.
func RecordImportCheck(verifier, state string) {
	if !enabled {
		return
	}
	importChecksTotal.WithLabelValues(verifier, state).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}
