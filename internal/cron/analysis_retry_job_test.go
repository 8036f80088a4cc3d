package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
)

type fakePendingAnalyzer struct {
	analyzed int
	failed   int
	err      error

	gotMinAge time.Duration
	gotLimit  int
	calls     int
}

func (f *fakePendingAnalyzer) RetryPendingAnalysis(_ context.Context, minAge time.Duration, limit int) (int, int, error) {
	f.calls++
	f.gotMinAge = minAge
	f.gotLimit = limit
	return f.analyzed, f.failed, f.err
}

func TestAnalysisRetryJobDefaults(t *testing.T) {
	images := &fakePendingAnalyzer{}
	job, err := NewAnalysisRetryJob(AnalysisRetryJobParams{Logger: logger.Nop(), Images: images})
	require.NoError(t, err)
	assert.Equal(t, AnalysisRetryJobName, job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, images.calls)
	assert.Equal(t, defaultAnalysisRetryBatch, images.gotLimit)
	assert.Equal(t, defaultAnalysisRetryMinAge, images.gotMinAge)
}

func TestAnalysisRetryJobCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	images := &fakePendingAnalyzer{analyzed: 3, failed: 1}
	job, err := NewAnalysisRetryJob(AnalysisRetryJobParams{
		Logger:  logger.Nop(),
		Images:  images,
		Metrics: m,
		Batch:   5,
		MinAge:  time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 5, images.gotLimit)
	assert.Equal(t, time.Minute, images.gotMinAge)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var analyzed, failed float64
	for _, mf := range mfs {
		if mf.GetName() != "cron_job_items_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() != "outcome" {
					continue
				}
				switch label.GetValue() {
				case "analyzed":
					analyzed = metric.GetCounter().GetValue()
				case "failed":
					failed = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(3), analyzed)
	assert.Equal(t, float64(1), failed)
}

func TestAnalysisRetryJobPropagatesListFailure(t *testing.T) {
	job, err := NewAnalysisRetryJob(AnalysisRetryJobParams{
		Logger: logger.Nop(),
		Images: &fakePendingAnalyzer{err: errors.New("db down")},
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestNewAnalysisRetryJobRequiresDeps(t *testing.T) {
	_, err := NewAnalysisRetryJob(AnalysisRetryJobParams{Images: &fakePendingAnalyzer{}})
	require.Error(t, err)

	_, err = NewAnalysisRetryJob(AnalysisRetryJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
