package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-auth/jobs"
)

// QueueInspector is the subset of asynq.Inspector used by the jobs commands.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	inspector QueueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis options.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) (*JobsCLI, error) {
	return &JobsCLI{inspector: asynq.NewInspector(redisOpts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	if c == nil || c.inspector == nil {
		return nil
	}
	return c.inspector.Close()
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
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
		stats.Archived = info.Archived
		stats.Processed = info.Processed
		stats.Failed = info.Failed
	}
	return stats, nil
}

// ListArchived returns failed mail deliveries kept in the archive.
func (c *JobsCLI) ListArchived(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// StatsOptions configures the jobs-stats command.
type StatsOptions struct {
	JSONOutput bool
	Archived   int
	Stdout     io.Writer
	Stderr     io.Writer
}

// StatsCommand prints queue statistics and, when requested, the most recent
// archived tasks.
func (c *JobsCLI) StatsCommand(ctx context.Context, opts StatsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "jobs-stats: %v\n", err)
		return 1
	}
	var archived []*asynq.TaskInfo
	if opts.Archived > 0 {
		archived, err = c.ListArchived(ctx, opts.Archived)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs-stats: list archived: %v\n", err)
			return 1
		}
	}
	if opts.JSONOutput {
		payload := struct {
			QueueStats
			LastErrors []string `json:"last_errors,omitempty"`
		}{QueueStats: stats}
		for _, task := range archived {
			payload.LastErrors = append(payload.LastErrors, task.LastErr)
		}
		if err := json.NewEncoder(opts.Stdout).Encode(payload); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs-stats: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d processed=%d failed=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.Processed, stats.Failed)
	for _, task := range archived {
		_, _ = fmt.Fprintf(opts.Stdout, "archived %s type=%s error=%q\n", task.ID, task.Type, task.LastErr)
	}
	return 0
}
