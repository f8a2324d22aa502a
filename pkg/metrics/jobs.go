package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Jobs records scheduled job runs.
type Jobs struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	affected *prometheus.CounterVec
}

// NewJobs registers the scheduled job metrics on the provided registerer.
func NewJobs(reg prometheus.Registerer) *Jobs {
	if reg == nil {
		return &Jobs{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of scheduled jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_runs_total",
		Help: "Scheduled job executions by outcome.",
	}, []string{"job", "outcome"})
	affected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_rows_affected_total",
		Help: "Rows expired or purged by scheduled jobs.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, affected)
	return &Jobs{duration: duration, runs: runs, affected: affected}
}

func (j *Jobs) ObserveDuration(job string, duration time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (j *Jobs) IncSuccess(job string) {
	j.incRun(job, "success")
}

func (j *Jobs) IncFailure(job string) {
	j.incRun(job, "failure")
}

// AddAffected counts rows a job changed during one run.
func (j *Jobs) AddAffected(job string, rows int64) {
	if j == nil || j.affected == nil || rows <= 0 {
		return
	}
	j.affected.WithLabelValues(normalizeLabel(job)).Add(float64(rows))
}

func (j *Jobs) incRun(job, outcome string) {
	if j == nil || j.runs == nil {
		return
	}
	j.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}
