package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skehlet/dailymail/internal/domain"
)

// requireNoError fails the test immediately if err is non-nil.
func requireNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// requireLen fails the test immediately if the slice length does not match.
func requireLen[T any](t *testing.T, items []T, expected int) {
	t.Helper()

	if len(items) != expected {
		t.Fatalf("expected %d items, got %d", expected, len(items))
	}
}

func assertEqual[T comparable](t *testing.T, expected, actual T) {
	t.Helper()

	if expected != actual {
		t.Errorf("expected %v, got %v", expected, actual)
	}
}

// errStore stands in for a backend outage.
var errStore = errors.New("store unavailable")

// memLedger implements feed.Ledger in memory.
type memLedger struct {
	mu       sync.Mutex
	seen     map[[2]string]time.Time
	marks    int
	checkErr error
	markErr  error
	// failMarkAfter makes MarkProcessed fail once this many marks succeeded.
	failMarkAfter int
}

func newMemLedger() *memLedger {
	return &memLedger{seen: make(map[[2]string]time.Time), failMarkAfter: -1}
}

func (l *memLedger) IsProcessed(_ context.Context, sourceURL, entryID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.checkErr != nil {
		return false, l.checkErr
	}

	_, ok := l.seen[[2]string{sourceURL, entryID}]
	return ok, nil
}

func (l *memLedger) MarkProcessed(_ context.Context, sourceURL, entryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.markErr != nil {
		return l.markErr
	}
	if l.failMarkAfter >= 0 && l.marks >= l.failMarkAfter {
		return errStore
	}

	l.marks++
	l.seen[[2]string{sourceURL, entryID}] = time.Now()
	return nil
}

func (l *memLedger) has(sourceURL, entryID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.seen[[2]string{sourceURL, entryID}]
	return ok
}

// memFetchCache implements feed.FetchCacheStore in memory.
type memFetchCache struct {
	rows   map[string]domain.FetchCache
	writes int
	getErr error
	putErr error
}

func newMemFetchCache() *memFetchCache {
	return &memFetchCache{rows: make(map[string]domain.FetchCache)}
}

func (c *memFetchCache) Get(_ context.Context, sourceURL string) (*domain.FetchCache, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}

	row, ok := c.rows[sourceURL]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (c *memFetchCache) Upsert(_ context.Context, sourceURL, etag, lastModified string) error {
	if c.putErr != nil {
		return c.putErr
	}

	c.writes++
	c.rows[sourceURL] = domain.FetchCache{
		SourceURL:    sourceURL,
		ETag:         etag,
		LastModified: lastModified,
		UpdatedAt:    time.Now(),
	}
	return nil
}

// recordingPublisher implements feed.Publisher and keeps what it was sent.
type recordingPublisher struct {
	sent    []domain.Record
	failURL string
}

func (p *recordingPublisher) Send(_ context.Context, body any) (string, error) {
	rec, ok := body.(domain.Record)
	if !ok {
		return "", errors.New("unexpected body type")
	}
	if p.failURL != "" && rec.URL == p.failURL {
		return "", errors.New("queue unavailable")
	}

	p.sent = append(p.sent, rec)
	return "1-0", nil
}
