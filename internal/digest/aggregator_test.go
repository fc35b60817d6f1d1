package digest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/digest"
	"github.com/skehlet/dailymail/internal/domain"
)

type fakeSynth struct {
	calls []string
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, feedTitle string, _ []domain.Record) (*domain.Synthesis, error) {
	f.calls = append(f.calls, feedTitle)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Synthesis{Summary: "together"}, nil
}

func titles(groups []domain.DigestGroup) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.FeedTitle
	}
	return out
}

func published(g domain.DigestGroup) []string {
	out := make([]string, len(g.Records))
	for i, r := range g.Records {
		out[i] = r.Published
	}
	return out
}

func TestAggregate_GroupingAndSortingAreDeterministic(t *testing.T) {
	t.Parallel()

	agg := digest.NewAggregator(time.UTC, nil, logger.NewNop())
	records := []domain.Record{
		{FeedTitle: "B", Published: "2024-01-02"},
		{FeedTitle: "A", Published: "2024-01-03"},
		{FeedTitle: "A", Published: "2024-01-01"},
	}

	for range 3 {
		groups := agg.Aggregate(context.Background(), records)

		require.Equal(t, []string{"A", "B"}, titles(groups))
		assert.Equal(t, []string{"2024-01-03 00:00 UTC", "2024-01-01 00:00 UTC"}, published(groups[0]))
		assert.Equal(t, []string{"2024-01-02 00:00 UTC"}, published(groups[1]))
	}
}

func TestAggregate_MissingFeedTitleIsMiscellaneous(t *testing.T) {
	t.Parallel()

	agg := digest.NewAggregator(time.UTC, nil, logger.NewNop())
	groups := agg.Aggregate(context.Background(), []domain.Record{{URL: "https://www.example.com/a"}})

	require.Len(t, groups, 1)
	assert.Equal(t, digest.DefaultFeedTitle, groups[0].FeedTitle)

	rec := groups[0].Records[0]
	assert.Equal(t, digest.DefaultTitle, rec.Title)
	assert.Equal(t, digest.DefaultPublished, rec.Published)
	assert.Equal(t, digest.DefaultSummary, rec.Summary)
	assert.Equal(t, "example.com", rec.Domain)
	assert.Empty(t, rec.NotableAspects)
}

func TestAggregate_UnparsableDateIsKeptAndSortsOldest(t *testing.T) {
	t.Parallel()

	agg := digest.NewAggregator(time.UTC, nil, logger.NewNop())
	groups := agg.Aggregate(context.Background(), []domain.Record{
		{FeedTitle: "A", Title: "bad", Published: "not a date"},
		{FeedTitle: "A", Title: "old", Published: "2020-05-01"},
		{FeedTitle: "A", Title: "missing"},
		{FeedTitle: "A", Title: "new", Published: "Mon, 22 Apr 2024 21:09:53 GMT"},
	})

	require.Len(t, groups, 1)
	var got []string
	for _, r := range groups[0].Records {
		got = append(got, r.Title)
	}
	assert.Equal(t, []string{"new", "old", "bad", "missing"}, got)
	assert.Equal(t, "not a date", groups[0].Records[2].Published)
	assert.Equal(t, digest.DefaultPublished, groups[0].Records[3].Published)
}

func TestAggregate_LocalizesToDisplayTimezone(t *testing.T) {
	t.Parallel()

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	agg := digest.NewAggregator(la, nil, logger.NewNop())
	groups := agg.Aggregate(context.Background(), []domain.Record{
		{FeedTitle: "A", Published: "2024-06-01T15:30:00Z"},
	})

	assert.Equal(t, "2024-06-01 08:30 PDT", groups[0].Records[0].Published)
}

func TestAggregate_SynthesizesOnlyMultiRecordGroups(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{}
	agg := digest.NewAggregator(time.UTC, synth, logger.NewNop())
	groups := agg.Aggregate(context.Background(), []domain.Record{
		{FeedTitle: "Solo"},
		{FeedTitle: "Pair"},
		{FeedTitle: "Pair"},
	})

	assert.Equal(t, []string{"Pair"}, synth.calls)
	require.NotNil(t, groups[0].Synthesis)
	assert.Equal(t, "together", groups[0].Synthesis.Summary)
	assert.Nil(t, groups[1].Synthesis)
}

func TestAggregate_SynthesisFailureFallsBack(t *testing.T) {
	t.Parallel()

	agg := digest.NewAggregator(time.UTC, &fakeSynth{err: errors.New("overloaded")}, logger.NewNop())
	groups := agg.Aggregate(context.Background(), []domain.Record{
		{FeedTitle: "Google Alert - rust", Title: "one"},
		{FeedTitle: "Google Alert - rust", Title: "two"},
	})

	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Records, 2)
	require.NotNil(t, groups[0].Synthesis)
	assert.True(t, groups[0].Synthesis.Fallback)
	assert.Equal(t, "2 articles related to Google Alert - rust were found.", groups[0].Synthesis.Summary)
}

func TestDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", digest.Domain("https://www.Example.com/x?y=1"))
	assert.Equal(t, "news.example.org", digest.Domain("http://news.example.org:8080/"))
	assert.Empty(t, digest.Domain(""))
	assert.Empty(t, digest.Domain("::not a url"))
}

func TestRunState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "COLLECTING", digest.StateCollecting.String())
	assert.Equal(t, "PURGED", digest.StatePurged.String())
	assert.Equal(t, "UNKNOWN", digest.RunState(42).String())
}
