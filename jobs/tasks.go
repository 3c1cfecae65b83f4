package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup preloads the dashboard cache.
	TaskDashboardWarmup = "dashboard:warmup"
)

// WarmupPayload describes one warmup request.
type WarmupPayload struct {
	// Trigger is "cron" for scheduled runs and "manual" otherwise.
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewWarmupTask constructs a warmup task. Manual requests get a unique task id
// so they show up individually in the queue.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	if payload.Trigger == "" {
		payload.Trigger = "cron"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var opts []asynq.Option
	if payload.Trigger != "cron" {
		opts = append(opts, asynq.TaskID("warmup-"+uuid.NewString()))
	}
	return asynq.NewTask(TaskDashboardWarmup, data, opts...), nil
}
