package feed

import (
	"context"
	"fmt"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/metrics"
)

// Ledger records which entries of a feed were already handed downstream.
type Ledger interface {
	IsProcessed(ctx context.Context, sourceURL, entryID string) (bool, error)
	MarkProcessed(ctx context.Context, sourceURL, entryID string) error
}

// Normalizer turns feed entries into records, skipping ones the ledger has seen.
type Normalizer struct {
	ledger  Ledger
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewNormalizer creates a Normalizer. m may be nil.
func NewNormalizer(ledger Ledger, log logger.Logger, m *metrics.Metrics) *Normalizer {
	return &Normalizer{ledger: ledger, log: log, metrics: m}
}

// Normalize returns a record for every new entry and marks each one
// processed as soon as it is built. Marking happens before the caller
// enqueues, so a failed enqueue loses the entry rather than repeating it.
// A ledger failure aborts the remaining entries of this source; the records
// marked before it are still returned alongside the error.
func (n *Normalizer) Normalize(
	ctx context.Context,
	src domain.FeedSource,
	feedTitle, feedDescription string,
	entries []Entry,
) ([]domain.Record, error) {
	records := make([]domain.Record, 0, len(entries))

	for i := range entries {
		entry := &entries[i]

		if entry.Link == "" {
			n.log.Debug("skipping feed entry without link",
				logger.String("source_url", src.URL),
				logger.String("entry_id", entry.ID),
			)
			continue
		}

		finalURL := ResolveRedirector(entry.Link)
		entryID := entry.ID
		if entryID == "" {
			entryID = finalURL
		}

		seen, err := n.ledger.IsProcessed(ctx, src.URL, entryID)
		if err != nil {
			return records, fmt.Errorf("normalize %s: %w", src.URL, err)
		}
		if seen {
			n.metrics.EntryDuplicate(src.URL)
			continue
		}

		records = append(records, domain.Record{
			Type:            domain.RecordTypeRSSEntry,
			FeedTitle:       feedTitle,
			FeedDescription: feedDescription,
			FeedContext:     src.Context,
			Title:           entry.Title,
			URL:             finalURL,
			Description:     entry.Description,
			Published:       entry.Published,
		})

		if markErr := n.ledger.MarkProcessed(ctx, src.URL, entryID); markErr != nil {
			return records[:len(records)-1], fmt.Errorf("normalize %s: %w", src.URL, markErr)
		}
	}

	return records, nil
}
