package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/salesdash/salesdash/internal/app"
	"github.com/salesdash/salesdash/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the helpers against the given Redis connection.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func newWarmupCommand(rt *runtime) *cobra.Command {
	var enqueue bool
	cmd := &cobra.Command{
		Use:   "warmup",
		Short: "Preload the dashboard cache for the current month",
		Long: `Builds the international dashboard and every line dashboard for the current
month so the next requests are served from Redis. With --enqueue the work is
handed to the worker instead of running in this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.RedisAddr == "" {
				return errors.New("warmup: REDIS_ADDR is not set, there is no cache to warm")
			}
			if enqueue {
				c := NewJobsCLI(redisOpts(rt.cfg))
				defer c.Close()
				info, err := c.client.EnqueueWarmup(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Queue)
				return nil
			}
			components, err := app.Wire(cmd.Context(), rt.cfg, rt.logger, nil)
			if err != nil {
				return err
			}
			defer components.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			return components.Service.Warmup(ctx)
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Enqueue a warmup task for the worker instead of running it here")
	return cmd
}

func newJobsCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "Show the background job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.RedisAddr == "" {
				return errors.New("jobs: REDIS_ADDR is not set")
			}
			c := NewJobsCLI(redisOpts(rt.cfg))
			defer c.Close()
			stats, err := c.InspectQueue()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		},
	}
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
