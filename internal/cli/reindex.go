package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
)

var (
	reindexBatchSize    int
	reindexWorkers      int
	reindexDryRun       bool
	reindexLocal        bool
	reindexPollInterval time.Duration
)

var ReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-score every server and rebuild the search index",
	Long: `Re-scores every record from the record store and upserts a fresh search document for it.
By default the reindex runs as an admin job on the registry server; --local runs it in
this process against the configured stores.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := service.ReindexOptions{BatchSize: reindexBatchSize, Workers: reindexWorkers, DryRun: reindexDryRun}
		if reindexLocal {
			return runLocalReindex(cmd, opts)
		}
		return runRemoteReindex(cmd, opts)
	},
}

func init() {
	ReindexCmd.Flags().IntVar(&reindexBatchSize, "batch-size", 100, "Number of records read per batch")
	ReindexCmd.Flags().IntVar(&reindexWorkers, "workers", 0, "Parallel workers (0 uses the server default)")
	ReindexCmd.Flags().BoolVar(&reindexDryRun, "dry-run", false, "Compute scores without writing either store")
	ReindexCmd.Flags().BoolVar(&reindexLocal, "local", false, "Run against the configured stores instead of the server")
	ReindexCmd.Flags().DurationVar(&reindexPollInterval, "poll-interval", 2*time.Second, "Job status poll interval")
}

func runLocalReindex(cmd *cobra.Command, opts service.ReindexOptions) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()
	res, err := a.Registry.Reindex(auth.WithSystemContext(ctx), opts, func(stats service.ReindexResult) {
		fmt.Fprintf(out, "processed %d (indexed %d, rescored %d, failed %d)\n", stats.Processed, stats.Indexed, stats.Rescored, stats.Failures)
	})
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	printReindexResult(cmd, *res)
	return nil
}

func runRemoteReindex(cmd *cobra.Command, opts service.ReindexOptions) error {
	c, err := registryClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	started, err := c.Reindex(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to start reindex: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reindex job %s started\n", started.JobID)

	job, err := waitForJob(ctx, started.JobID, reindexPollInterval, func(j *jobs.Job) {
		fmt.Fprintf(cmd.OutOrStdout(), "[%3d%%] %s\n", j.Progress, j.Message)
	})
	if err != nil {
		return err
	}
	if job.Status == jobs.StatusFailed {
		return fmt.Errorf("reindex job %s failed: %s", job.ID, job.Error)
	}
	res := service.ReindexResult{
		Processed: toInt(job.Result["processed"]),
		Rescored:  toInt(job.Result["rescored"]),
		Indexed:   toInt(job.Result["indexed"]),
		Pruned:    toInt(job.Result["pruned"]),
	}
	failed, _ := job.Result["failed"].([]any)
	for _, f := range failed {
		res.Failed = append(res.Failed, fmt.Sprint(f))
	}
	printReindexResult(cmd, res)
	return nil
}

func waitForJob(ctx context.Context, id string, interval time.Duration, onUpdate func(*jobs.Job)) (*jobs.Job, error) {
	c, err := registryClient()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastProgress := -1
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get job %s: %w", id, err)
		}
		if job.Progress != lastProgress {
			onUpdate(job)
			lastProgress = job.Progress
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printReindexResult(cmd *cobra.Command, res service.ReindexResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed: %d\nRescored:  %d\nIndexed:   %d\nPruned:    %d\nFailed:    %d\n",
		res.Processed, res.Rescored, res.Indexed, res.Pruned, len(res.Failed))
	for _, id := range res.Failed {
		fmt.Fprintf(out, "  - %s\n", id)
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
