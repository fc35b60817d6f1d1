package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/skehlet/dailymail/internal/domain"
)

// Sweep defaults.
const (
	DefaultSweepPageSize  = 100
	DefaultSweepBatchSize = 25
)

// SweepConfig bounds and paces the retention sweep.
type SweepConfig struct {
	// PageSize is the number of expired keys loaded per query.
	PageSize int
	// BatchSize is the number of keys removed per DELETE.
	BatchSize int
	// BatchesPerSecond caps DELETE throughput. Zero or less disables pacing.
	BatchesPerSecond float64
	// PagePause is slept between pages.
	PagePause time.Duration
}

// LedgerRepository records which feed entries were already handed downstream.
type LedgerRepository struct {
	db    *sqlx.DB
	sweep SweepConfig
	now   func() time.Time
}

// NewLedgerRepository creates a ledger repository.
func NewLedgerRepository(db *sqlx.DB, sweep SweepConfig) *LedgerRepository {
	if sweep.PageSize <= 0 {
		sweep.PageSize = DefaultSweepPageSize
	}
	if sweep.BatchSize <= 0 {
		sweep.BatchSize = DefaultSweepBatchSize
	}
	return &LedgerRepository{db: db, sweep: sweep, now: time.Now}
}

// IsProcessed reports whether the entry was already marked for this feed.
func (r *LedgerRepository) IsProcessed(ctx context.Context, sourceURL, entryID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM processed_entries WHERE source_url = $1 AND entry_id = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, sourceURL, entryID); err != nil {
		return false, storeErr("check processed entry", err)
	}

	return exists, nil
}

// MarkProcessed records the entry. Marking an entry twice refreshes seen_at.
func (r *LedgerRepository) MarkProcessed(ctx context.Context, sourceURL, entryID string) error {
	query := `
		INSERT INTO processed_entries (source_url, entry_id, seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_url, entry_id) DO UPDATE SET seen_at = EXCLUDED.seen_at
	`

	_, err := r.db.ExecContext(ctx, query, sourceURL, entryID, r.now().UTC())
	return storeErr("mark processed entry", err)
}

// SweepExpired deletes entries whose seen_at is older than now-retention and
// returns how many rows were removed. Expired keys are loaded one page at a
// time and deleted in paced batches.
func (r *LedgerRepository) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("sweep retention must be positive, got %s", retention)
	}

	cutoff := r.now().UTC().Add(-retention)
	limiter := newBatchLimiter(r.sweep.BatchesPerSecond)

	total := 0
	for {
		page, err := r.expiredPage(ctx, cutoff)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}

		for start := 0; start < len(page); start += r.sweep.BatchSize {
			end := min(start+r.sweep.BatchSize, len(page))

			if waitErr := limiter.Wait(ctx); waitErr != nil {
				return total, fmt.Errorf("sweep paced wait: %w", waitErr)
			}

			deleted, delErr := r.deleteBatch(ctx, page[start:end])
			total += deleted
			if delErr != nil {
				return total, delErr
			}
		}

		if len(page) < r.sweep.PageSize {
			return total, nil
		}
		if pauseErr := pause(ctx, r.sweep.PagePause); pauseErr != nil {
			return total, fmt.Errorf("sweep page pause: %w", pauseErr)
		}
	}
}

func (r *LedgerRepository) expiredPage(ctx context.Context, cutoff time.Time) ([]domain.ProcessedEntry, error) {
	query := `
		SELECT source_url, entry_id, seen_at FROM processed_entries
		WHERE seen_at < $1
		ORDER BY seen_at
		LIMIT $2
	`

	var page []domain.ProcessedEntry
	if err := r.db.SelectContext(ctx, &page, query, cutoff, r.sweep.PageSize); err != nil {
		return nil, storeErr("list expired entries", err)
	}

	return page, nil
}

func (r *LedgerRepository) deleteBatch(ctx context.Context, batch []domain.ProcessedEntry) (int, error) {
	tuples := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*2)
	for i, e := range batch {
		tuples = append(tuples, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		args = append(args, e.SourceURL, e.EntryID)
	}

	query := `DELETE FROM processed_entries WHERE (source_url, entry_id) IN (` + strings.Join(tuples, ", ") + `)`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeErr("delete expired entries", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("delete expired entries", err)
	}

	return int(n), nil
}

func newBatchLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
