package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/bootstrap"
	"github.com/skehlet/dailymail/internal/digest"
)

func queueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the pipeline queues",
	}
	cmd.AddCommand(queueRedriveCommand(), queueDumpCommand(), queueStatsCommand())
	return cmd
}

func queueRedriveCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "redrive",
		Short: "Move dead-lettered messages back onto their queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				q, err := deps.QueueByName(ctx, name)
				if err != nil {
					return err
				}

				moved, err := q.Redrive(ctx)
				if err != nil {
					return err
				}

				deps.Logger.Info("dead letters redriven",
					logger.String("queue", name),
					logger.Int("moved", moved),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "moved %d messages from %s to %s\n", moved, q.DeadLetterStream(), q.Stream())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "queue", "", "scraper, summarizer or digest")
	_ = cmd.MarkFlagRequired("queue")

	return cmd
}

func queueDumpCommand() *cobra.Command {
	var name, out string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the messages of a queue to a fixture file without removing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				q, err := deps.QueueByName(ctx, name)
				if err != nil {
					return err
				}

				msgs, err := q.Peek(ctx)
				if err != nil {
					return err
				}

				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create fixture: %w", err)
				}
				if err = digest.WriteFixture(f, msgs); err != nil {
					_ = f.Close()
					return err
				}
				if err = f.Close(); err != nil {
					return fmt.Errorf("close fixture: %w", err)
				}

				deps.Logger.Info("queue dumped",
					logger.String("queue", name),
					logger.String("file", out),
					logger.Int("messages", len(msgs)),
				)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "queue", bootstrap.QueueDigest, "scraper, summarizer or digest")
	cmd.Flags().StringVar(&out, "out", "example-messages.json", "fixture file to write")

	return cmd
}

func queueStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the length of every queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				for _, name := range []string{bootstrap.QueueScraper, bootstrap.QueueSummarizer, bootstrap.QueueDigest} {
					q, err := deps.QueueByName(ctx, name)
					if err != nil {
						return err
					}
					n, err := q.Len(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\t%d\n", name, q.Stream(), n)
				}
				return nil
			})
		},
	}
}
