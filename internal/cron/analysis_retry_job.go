package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
)

const (
	AnalysisRetryJobName = "analysis-retry"

	defaultAnalysisRetryBatch  = 25
	defaultAnalysisRetryMinAge = 10 * time.Minute
)

// pendingAnalyzer is implemented by images.Service.
type pendingAnalyzer interface {
	RetryPendingAnalysis(ctx context.Context, minAge time.Duration, limit int) (analyzed, failed int, err error)
}

type AnalysisRetryJobParams struct {
	Logger  *logger.Logger
	Images  pendingAnalyzer
	Metrics *metrics.CronJobMetrics
	Batch   int
	MinAge  time.Duration
}

// NewAnalysisRetryJob re-runs the vision model on photos that were stored
// while the model was unavailable. MinAge keeps it away from uploads whose
// inline analysis may still be in flight.
func NewAnalysisRetryJob(params AnalysisRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Images == nil {
		return nil, fmt.Errorf("image service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultAnalysisRetryBatch
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultAnalysisRetryMinAge
	}
	return &analysisRetryJob{
		logg:    params.Logger,
		images:  params.Images,
		metrics: params.Metrics,
		batch:   batch,
		minAge:  minAge,
	}, nil
}

type analysisRetryJob struct {
	logg    *logger.Logger
	images  pendingAnalyzer
	metrics *metrics.CronJobMetrics
	batch   int
	minAge  time.Duration
}

func (j *analysisRetryJob) Name() string { return AnalysisRetryJobName }

// Run fails only when the pending set cannot be read. Individual records
// that fail again are counted and left for the next cycle.
func (j *analysisRetryJob) Run(ctx context.Context) error {
	analyzed, failed, err := j.images.RetryPendingAnalysis(ctx, j.minAge, j.batch)
	j.count("analyzed", analyzed)
	j.count("failed", failed)
	if err != nil {
		return fmt.Errorf("analysis retry: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batch":    j.batch,
		"min_age":  j.minAge.String(),
		"analyzed": analyzed,
		"failed":   failed,
	})
	j.logg.Info(logCtx, "cron.analysis_retry.complete")
	return nil
}

func (j *analysisRetryJob) count(outcome string, n int) {
	for i := 0; i < n; i++ {
		j.metrics.IncItem(AnalysisRetryJobName, outcome)
	}
}
