// Package jobs hosts the asynq background worker and its task types.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatsWarmup pre-populates the aggregate caches.
	TaskStatsWarmup = "stats:warmup"
)

// StatsWarmupPayload configures a warmup run.
type StatsWarmupPayload struct {
	// Reason is recorded in the worker log, e.g. "cron" or "deploy".
	Reason string `json:"reason"`
}

// NewStatsWarmupTask constructs an Asynq task.
func NewStatsWarmupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(StatsWarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data), nil
}
