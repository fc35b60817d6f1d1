package feed

import (
	"context"
	"fmt"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/metrics"
)

// Fetcher performs conditional fetches and persists the resulting validators.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.FeedSource) (*FetchResult, error)
	StoreValidators(ctx context.Context, result *FetchResult) error
}

// Publisher hands a record to the next stage.
type Publisher interface {
	Send(ctx context.Context, body any) (string, error)
}

// Poller polls feeds and publishes new entries to the scraper queue.
type Poller struct {
	fetcher    Fetcher
	normalizer *Normalizer
	publisher  Publisher
	log        logger.Logger
	metrics    *metrics.Metrics
}

// NewPoller creates a new feed poller.
func NewPoller(
	fetcher Fetcher,
	normalizer *Normalizer,
	publisher Publisher,
	log logger.Logger,
	m *metrics.Metrics,
) *Poller {
	return &Poller{
		fetcher:    fetcher,
		normalizer: normalizer,
		publisher:  publisher,
		log:        log,
		metrics:    m,
	}
}

// PollFeed polls a single feed, publishes its new entries and returns how
// many were published. Validators are written only after the entries are
// handled, so a source that fails midway is fetched in full next cycle.
func (p *Poller) PollFeed(ctx context.Context, src domain.FeedSource) (int, error) {
	result, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		p.metrics.FeedFetched(metrics.OutcomeFailed)
		return 0, fmt.Errorf("poll feed fetch: %w", err)
	}

	if result.NotModified() {
		p.metrics.FeedFetched(metrics.OutcomeNotModified)
		p.log.Info("feed not modified, skipping", logger.String("feed_url", src.URL))
		return 0, p.storeValidators(ctx, result)
	}

	p.metrics.FeedFetched(metrics.OutcomeFetched)

	// Records built before a ledger failure are already marked, so they are
	// published even when the source is abandoned.
	records, normErr := p.normalizer.Normalize(ctx, src, result.FeedTitle, result.FeedDescription, result.Entries)
	published := p.publishRecords(ctx, src, records)
	if normErr != nil {
		return published, fmt.Errorf("poll feed normalize: %w", normErr)
	}

	if storeErr := p.storeValidators(ctx, result); storeErr != nil {
		return published, storeErr
	}

	p.log.Info("feed polled successfully",
		logger.String("feed_url", src.URL),
		logger.Int("entries", len(result.Entries)),
		logger.Int("published", published),
	)

	return published, nil
}

// publishRecords sends each record downstream. Failures are logged and
// skipped; the ledger already holds them.
func (p *Poller) publishRecords(ctx context.Context, src domain.FeedSource, records []domain.Record) int {
	published := 0

	for i := range records {
		if _, sendErr := p.publisher.Send(ctx, records[i]); sendErr != nil {
			p.log.Error("failed to publish feed entry",
				logger.String("feed_url", src.URL),
				logger.String("url", records[i].URL),
				logger.Error(sendErr),
			)
			continue
		}

		p.metrics.EntryEnqueued(src.URL)
		published++
	}

	return published
}

func (p *Poller) storeValidators(ctx context.Context, result *FetchResult) error {
	if !result.NeedsCacheWrite() {
		return nil
	}

	if err := p.fetcher.StoreValidators(ctx, result); err != nil {
		return fmt.Errorf("poll feed store validators: %w", err)
	}

	return nil
}
