package feed

import (
	"context"
	"errors"
	"time"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/database"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/metrics"
)

// Sweeper removes ledger rows older than the retention window.
type Sweeper interface {
	SweepExpired(ctx context.Context, retention time.Duration) (int, error)
}

// CycleReport summarizes one ingest cycle.
type CycleReport struct {
	Sources   int
	Failed    int
	Published int
	Swept     int
	// Transient and Malformed break Failed down; a failure may be neither.
	Transient int
	Malformed int
}

// Cycle polls every configured source once, then sweeps the ledger.
type Cycle struct {
	poller    *Poller
	sweeper   Sweeper
	retention time.Duration
	log       logger.Logger
	metrics   *metrics.Metrics
}

// NewCycle creates a Cycle. sweeper may be nil to skip the sweep.
func NewCycle(
	poller *Poller,
	sweeper Sweeper,
	retention time.Duration,
	log logger.Logger,
	m *metrics.Metrics,
) *Cycle {
	return &Cycle{poller: poller, sweeper: sweeper, retention: retention, log: log, metrics: m}
}

// Run polls sources one at a time. A failing source is logged and the
// cycle moves on; Run itself only fails when ctx is cancelled.
func (c *Cycle) Run(ctx context.Context, sources []domain.FeedSource) (CycleReport, error) {
	report := CycleReport{Sources: len(sources)}

	c.log.Info("polling feeds", logger.Int("count", len(sources)))

	for i := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		published, err := c.poller.PollFeed(ctx, sources[i])
		report.Published += published
		if err != nil {
			report.Failed++
			transient, malformed := c.logPollError(sources[i], err)
			if transient {
				report.Transient++
			}
			if malformed {
				report.Malformed++
			}
		}
	}

	report.Swept = c.sweep(ctx)

	c.log.Info("feed cycle complete",
		logger.Int("sources", report.Sources),
		logger.Int("failed", report.Failed),
		logger.Int("transient", report.Transient),
		logger.Int("malformed", report.Malformed),
		logger.Int("published", report.Published),
		logger.Int("swept", report.Swept),
	)

	return report, nil
}

// sweep runs the ledger maintenance. Its failure never fails the cycle.
func (c *Cycle) sweep(ctx context.Context) int {
	if c.sweeper == nil {
		return 0
	}

	deleted, err := c.sweeper.SweepExpired(ctx, c.retention)
	c.metrics.Swept(deleted)
	if err != nil {
		c.log.Error("ledger sweep failed",
			logger.Int("deleted", deleted),
			logger.Error(err),
		)
	}

	return deleted
}

// logPollError logs a failed source and classifies it. Ledger and fetch
// cache outages count as transient: the source is retried next cycle.
func (c *Cycle) logPollError(src domain.FeedSource, err error) (transient, malformed bool) {
	fields := []logger.Field{
		logger.String("feed_url", src.URL),
		logger.Error(err),
	}

	var pollErr *PollError
	if !errors.As(err, &pollErr) {
		transient = database.IsStoreError(err)
		fields = append(fields, logger.Bool("transient", transient))
		c.log.Error("feed poll failed", fields...)
		return transient, false
	}

	transient, malformed = pollErr.Transient(), pollErr.Malformed()
	fields = append(fields,
		logger.String("error_type", string(pollErr.Type)),
		logger.Bool("transient", transient),
		logger.Bool("malformed", malformed),
	)

	if pollErr.Level == LevelError {
		c.log.Error("feed poll failed", fields...)
	} else {
		c.log.Warn("feed poll failed", fields...)
	}
	return transient, malformed
}
