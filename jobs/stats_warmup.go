package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inkwell-cms/inkwell/internal/stats"
)

// StatsWarmupJob recomputes the aggregate counters into the cache so
// the first dashboard request after an eviction storm stays fast.
type StatsWarmupJob struct {
	Stats  *stats.Service
	Logger *slog.Logger
	clock  func() time.Time
}

// NewStatsWarmupJob wires dependencies for the warmup handler.
func NewStatsWarmupJob(statsSvc *stats.Service, logger *slog.Logger) *StatsWarmupJob {
	return &StatsWarmupJob{
		Stats:  statsSvc,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes stats warmup tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stats == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger().With(slog.String("reason", payload.Reason))
	logger.Info("starting stats warmup")

	start := j.clock()
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := j.Stats.Warm(warmCtx); err != nil {
		logger.Error("stats warmup", slog.Any("error", err))
		return err
	}

	logger.Info("completed stats warmup", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
