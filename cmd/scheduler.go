package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/infrastructure/profiling"
	"github.com/skehlet/dailymail/internal/bootstrap"
	"github.com/skehlet/dailymail/internal/scheduler"
)

// Scheduled job names.
const (
	jobRSSReader = "rss-reader"
	jobWorkers   = "workers"
	jobDigest    = "digest"
)

func schedulerCommand() *cobra.Command {
	var runNow []string

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the pipeline stages on their cron schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				profiling.StartPprofServer(ctx, deps.Config.Service.PprofAddress, deps.Logger)
				s, err := newScheduler(deps)
				if err != nil {
					return err
				}
				for _, name := range runNow {
					if err = s.Trigger(ctx, name); err != nil {
						return err
					}
				}
				return s.Run(ctx)
			})
		},
	}

	cmd.Flags().StringSliceVar(&runNow, "run-now", nil, "jobs to run once before waiting for the schedule (rss-reader, workers, digest)")

	return cmd
}

func newScheduler(deps *bootstrap.Deps) (*scheduler.Scheduler, error) {
	sc := deps.Config.Scheduler
	s := scheduler.New(deps.SchedulerLocation(), deps.Logger)

	jobs := []scheduler.Job{
		{Name: jobRSSReader, Spec: sc.RSSReader, Run: func(ctx context.Context) error {
			return runRSSReader(ctx, deps)
		}},
		{Name: jobWorkers, Spec: sc.Workers, Run: deps.RunWorkers},
		{Name: jobDigest, Spec: sc.Digest, Run: func(ctx context.Context) error {
			return runDigest(ctx, deps)
		}},
	}

	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}
