package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "analysis-retry"
	finished := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveRun(job, 250*time.Millisecond, finished, nil)
	m.ObserveRun(job, time.Second, finished.Add(time.Hour), errors.New("boom"))
	m.IncItem(job, "analyzed")
	m.IncItem(job, "analyzed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	for result, want := range map[string]float64{ResultSuccess: 1, ResultFailure: 1} {
		got, err := fetchCounterValue(mfs, "cron_job_runs_total", "result", result)
		if err != nil {
			t.Fatalf("fetch %s: %v", result, err)
		}
		if got != want {
			t.Fatalf("expected %s=%v, got %v", result, want, got)
		}
	}

	if got, err := fetchCounterValue(mfs, "cron_job_items_total", "outcome", "analyzed"); err != nil {
		t.Fatalf("fetch items: %v", err)
	} else if got != 2 {
		t.Fatalf("expected items=2, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f", got)
	}

	gauge := findMetricFamily(mfs, "cron_job_last_success_timestamp_seconds")
	if gauge == nil || len(gauge.GetMetric()) != 1 {
		t.Fatalf("expected one last-success series")
	}
	if got := gauge.GetMetric()[0].GetGauge().GetValue(); got != float64(finished.Unix()) {
		t.Fatalf("failed run must not move last success, got %v", got)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", time.Second, time.Now(), nil)
	m.IncItem("x", "y")
	NewCronJobMetrics(nil).ObserveRun("x", time.Second, time.Now(), nil)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
