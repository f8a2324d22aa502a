package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobsRecordsRunsAndRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobs(reg)
	m.ObserveDuration("stale-payments", 1500*time.Millisecond)
	m.IncSuccess("stale-payments")
	m.IncFailure("outbox-retention")
	m.AddAffected("stale-payments", 3)
	m.AddAffected("stale-payments", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "job_duration_seconds", "job", "stale-payments"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.5 {
		t.Fatalf("expected duration 1.5s, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "job_runs_total", "outcome", "failure"); err != nil {
		t.Fatalf("fetch runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected one failure, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "job_rows_affected_total", "job", "stale-payments"); err != nil {
		t.Fatalf("fetch rows: %v", err)
	} else if got != 3 {
		t.Fatalf("expected 3 rows, got %f", got)
	}
}

func TestNilJobsIsNoop(t *testing.T) {
	var m *Jobs
	m.ObserveDuration("x", time.Second)
	m.IncSuccess("x")
	m.AddAffected("x", 1)
	NewJobs(nil).IncFailure("x")
}
