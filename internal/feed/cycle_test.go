package feed_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/database"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/feed"
)

// routedFetcher answers per URL.
type routedFetcher struct {
	responses map[string]*feed.FetchResponse
	order     []string
}

func (r *routedFetcher) Fetch(_ context.Context, url, _, _ string) (*feed.FetchResponse, error) {
	r.order = append(r.order, url)

	resp, ok := r.responses[url]
	if !ok {
		return nil, errors.New("no route")
	}
	return resp, nil
}

type mockSweeper struct {
	called    bool
	retention time.Duration
	deleted   int
	err       error
}

func (s *mockSweeper) SweepExpired(_ context.Context, retention time.Duration) (int, error) {
	s.called = true
	s.retention = retention
	return s.deleted, s.err
}

func newTestCycle(fetcher *routedFetcher, sweeper feed.Sweeper, publisher *recordingPublisher) *feed.Cycle {
	return newTestCycleWithLedger(fetcher, sweeper, publisher, newMemLedger())
}

func newTestCycleWithLedger(
	fetcher *routedFetcher,
	sweeper feed.Sweeper,
	publisher *recordingPublisher,
	ledger *memLedger,
) *feed.Cycle {
	poller := feed.NewPoller(
		feed.NewConditionalFetcher(fetcher, newMemFetchCache()),
		newTestNormalizer(ledger),
		publisher,
		logger.NewNop(),
		nil,
	)

	return feed.NewCycle(poller, sweeper, 365*24*time.Hour, logger.NewNop(), nil)
}

func TestCycle_BrokenFeedDoesNotAbortOthers(t *testing.T) {
	t.Parallel()

	fetcher := &routedFetcher{responses: map[string]*feed.FetchResponse{
		"https://a.example/rss": {StatusCode: 0},
		"https://b.example/rss": {StatusCode: http.StatusOK, Body: rssFixtureForPoller},
	}}
	publisher := &recordingPublisher{}
	sweeper := &mockSweeper{deleted: 4}

	report, err := newTestCycle(fetcher, sweeper, publisher).Run(context.Background(), []domain.FeedSource{
		{URL: "https://a.example/rss"},
		{URL: "https://missing.example/rss"},
		{URL: "https://b.example/rss"},
	})
	requireNoError(t, err)

	assertEqual(t, 3, report.Sources)
	assertEqual(t, 2, report.Failed)
	assertEqual(t, 1, report.Malformed)
	assertEqual(t, pollerFixtureItemCount, report.Published)
	assertEqual(t, 4, report.Swept)
	requireLen(t, fetcher.order, 3)
	assertEqual(t, "https://a.example/rss", fetcher.order[0])
	assertEqual(t, "https://b.example/rss", fetcher.order[2])
}

func TestCycle_StoreOutageCountsAsTransient(t *testing.T) {
	t.Parallel()

	fetcher := &routedFetcher{responses: map[string]*feed.FetchResponse{
		"https://b.example/rss": {StatusCode: http.StatusOK, Body: rssFixtureForPoller},
	}}
	ledger := newMemLedger()
	ledger.checkErr = &database.StoreError{Op: "check processed entry", Err: errStore}

	report, err := newTestCycleWithLedger(fetcher, nil, &recordingPublisher{}, ledger).Run(
		context.Background(), []domain.FeedSource{{URL: "https://b.example/rss"}},
	)
	requireNoError(t, err)

	assertEqual(t, 1, report.Failed)
	assertEqual(t, 1, report.Transient)
	assertEqual(t, 0, report.Malformed)
	assertEqual(t, 0, report.Published)
}

func TestCycle_SweepFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := &routedFetcher{responses: map[string]*feed.FetchResponse{
		"https://b.example/rss": {StatusCode: http.StatusOK, Body: rssFixtureForPoller},
	}}
	sweeper := &mockSweeper{deleted: 1, err: errStore}

	report, err := newTestCycle(fetcher, sweeper, &recordingPublisher{}).Run(context.Background(), []domain.FeedSource{
		{URL: "https://b.example/rss"},
	})
	requireNoError(t, err)

	if !sweeper.called {
		t.Fatal("expected sweep to run")
	}
	assertEqual(t, 365*24*time.Hour, sweeper.retention)
	assertEqual(t, 1, report.Swept)
	assertEqual(t, pollerFixtureItemCount, report.Published)
}

func TestCycle_NilSweeper(t *testing.T) {
	t.Parallel()

	report, err := newTestCycle(&routedFetcher{}, nil, &recordingPublisher{}).Run(context.Background(), nil)
	requireNoError(t, err)
	assertEqual(t, 0, report.Swept)
}

func TestCycle_CancelledContextStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &routedFetcher{}
	_, err := newTestCycle(fetcher, nil, &recordingPublisher{}).Run(ctx, []domain.FeedSource{{URL: "https://a.example/rss"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	requireLen(t, fetcher.order, 0)
}
