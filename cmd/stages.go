package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/bootstrap"
)

func rssReaderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rss-reader",
		Short: "Poll every configured feed once and sweep the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, runRSSReader)
		},
	}
}

func runRSSReader(ctx context.Context, deps *bootstrap.Deps) error {
	cycle, err := deps.RSSReader(ctx)
	if err != nil {
		return err
	}

	report, err := cycle.Run(ctx, deps.Config.Feeds.Sources)
	if err != nil {
		return err
	}

	deps.Logger.Info("rss reader finished",
		logger.Int("sources", report.Sources),
		logger.Int("failed", report.Failed),
		logger.Int("transient", report.Transient),
		logger.Int("malformed", report.Malformed),
		logger.Int("published", report.Published),
		logger.Int("swept", report.Swept),
	)
	return nil
}

func scraperCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scraper",
		Short: "Drain the scraper queue: fetch pages and stage records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				q, handler, err := deps.ScraperStage(ctx)
				if err != nil {
					return err
				}
				_, err = deps.DrainStage(ctx, q, handler)
				return err
			})
		},
	}
}

func summarizerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summarizer",
		Short: "Drain the summarizer queue: summarize staged records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				q, handler, err := deps.SummarizerStage(ctx)
				if err != nil {
					return err
				}
				_, err = deps.DrainStage(ctx, q, handler)
				return err
			})
		},
	}
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove ledger rows older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				ledger, err := deps.Ledger(ctx)
				if err != nil {
					return err
				}

				retention := deps.Config.Ledger.Retention
				deleted, err := ledger.SweepExpired(ctx, retention)
				deps.Metrics.Swept(deleted)
				if err != nil {
					return fmt.Errorf("sweep after %d deletions: %w", deleted, err)
				}

				deps.Logger.Info("ledger swept",
					logger.Int("deleted", deleted),
					logger.Duration("retention", retention),
				)
				return nil
			})
		},
	}
}
