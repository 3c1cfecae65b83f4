package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/salesdash/salesdash/internal/jobs"
)

const defaultWarmupTimeout = 5 * time.Minute

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Warmer preloads cached dashboard responses.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// DashboardWarmupJob pre-populates the dashboard cache for the current month.
type DashboardWarmupJob struct {
	Warmer  Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(warmer Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{Warmer: warmer, Logger: logger, Metrics: metrics, Timeout: defaultWarmupTimeout}
}

// Handle processes warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Warmer == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	logger.Info("starting dashboard warmup")

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = defaultWarmupTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Warmer.Warmup(runCtx); err != nil {
		logger.Error("dashboard warmup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed dashboard warmup", slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
