package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/target/engagement-ledger/internal/domain/model"
)

var outboxJobTypes = []model.JobType{model.JobTypePaymentSubmit, model.JobTypeNotification}

func newJobsCmd(app *adminApp) *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the outbox job queue",
	}

	var jobType string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print job counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			types := outboxJobTypes
			if jobType != "" {
				jt := model.JobType(jobType)
				if !jt.Valid() {
					return fmt.Errorf("unknown job type %q", jobType)
				}
				types = []model.JobType{jt}
			}
			return app.withRuntime(cmd, connectOptions{Services: true}, func(ctx context.Context, rt *runtime) error {
				return printJobStats(ctx, cmd, rt.Jobs, types)
			})
		},
	}
	stats.Flags().StringVar(&jobType, "type", "", "Limit to one job type (payment_submit, notification)")

	jobs.AddCommand(stats)
	return jobs
}

func printJobStats(ctx context.Context, cmd *cobra.Command, jobs jobStatsReader, types []model.JobType) error {
	tw := newTable(cmd.OutOrStdout())
	if err := writef(tw, "TYPE\tPENDING\tRUNNING\tCOMPLETED\tFAILED\n"); err != nil {
		return err
	}
	for _, jt := range types {
		s, err := jobs.Stats(ctx, jt)
		if err != nil {
			return fmt.Errorf("stats for %s: %w", jt, err)
		}
		if err := writef(tw, "%s\t%d\t%d\t%d\t%d\n", jt, s.Pending, s.Running, s.Completed, s.Failed); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func newReapCmd(app *adminApp) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one reaper pass over stale and expired jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withRuntime(cmd, connectOptions{Services: true}, func(ctx context.Context, rt *runtime) error {
				if err := rt.Reaper.RunOnce(ctx); err != nil {
					return err
				}
				return writef(cmd.OutOrStdout(), "reaper pass complete\n")
			})
		},
	}
}
