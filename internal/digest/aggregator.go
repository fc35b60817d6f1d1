// Package digest groups summarized records into the daily digest, renders it
// and hands it to the mailer.
package digest

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
)

// PublishedLayout is the display format of a parsed published date. It is
// zero-padded so formatted values sort lexicographically.
const PublishedLayout = "2006-01-02 15:04 MST"

// Synthesizer writes the collective blurb for a group of two or more records.
type Synthesizer interface {
	Synthesize(ctx context.Context, feedTitle string, records []domain.Record) (*domain.Synthesis, error)
}

// Aggregator turns a flat list of records into ordered digest groups.
type Aggregator struct {
	loc   *time.Location
	synth Synthesizer
	log   logger.Logger
}

// NewAggregator creates an Aggregator. loc is the display timezone; a nil
// synth disables synthesis.
func NewAggregator(loc *time.Location, synth Synthesizer, log logger.Logger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc, synth: synth, log: log}
}

// Aggregate groups, sorts and synthesizes records.
func (a *Aggregator) Aggregate(ctx context.Context, records []domain.Record) []domain.DigestGroup {
	groups := a.Group(records)
	a.Synthesize(ctx, groups)
	return groups
}

type datedRecord struct {
	rec    domain.Record
	parsed time.Time
	ok     bool
}

// Group applies defaults, localizes dates, derives domains, groups by feed
// title in alphabetical order and sorts each group newest first. Records
// whose date did not parse sort last; ties keep input order.
func (a *Aggregator) Group(records []domain.Record) []domain.DigestGroup {
	byTitle := make(map[string][]datedRecord)
	var titles []string

	for _, rec := range records {
		d := a.prepare(rec)
		if _, seen := byTitle[d.rec.FeedTitle]; !seen {
			titles = append(titles, d.rec.FeedTitle)
		}
		byTitle[d.rec.FeedTitle] = append(byTitle[d.rec.FeedTitle], d)
	}

	slices.Sort(titles)

	groups := make([]domain.DigestGroup, 0, len(titles))
	for _, title := range titles {
		dated := byTitle[title]
		slices.SortStableFunc(dated, newestFirst)

		group := domain.DigestGroup{FeedTitle: title, Records: make([]domain.Record, len(dated))}
		for i := range dated {
			group.Records[i] = dated[i].rec
		}
		groups = append(groups, group)
	}

	return groups
}

func newestFirst(x, y datedRecord) int {
	switch {
	case x.ok && !y.ok:
		return -1
	case !x.ok && y.ok:
		return 1
	case !x.ok && !y.ok:
		return 0
	}
	return cmp.Compare(y.parsed.UnixNano(), x.parsed.UnixNano())
}

func (a *Aggregator) prepare(rec domain.Record) datedRecord {
	raw := strings.TrimSpace(rec.Published)
	ApplyDefaults(&rec)

	d := datedRecord{rec: rec}
	if raw != "" {
		parsed, err := dateparse.ParseIn(raw, time.UTC)
		if err != nil {
			a.log.Warn("unparsable published date, keeping original",
				logger.String("published", raw),
				logger.String("url", rec.URL),
			)
		} else {
			d.parsed = parsed
			d.ok = true
			d.rec.Published = parsed.In(a.loc).Format(PublishedLayout)
		}
	}

	d.rec.Domain = Domain(rec.URL)
	return d
}

// Domain returns the host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Synthesize fills Synthesis for every group of two or more records. A
// failed synthesis gets the local fallback text; the group is kept.
func (a *Aggregator) Synthesize(ctx context.Context, groups []domain.DigestGroup) {
	if a.synth == nil {
		return
	}

	for i := range groups {
		g := &groups[i]
		if len(g.Records) < 2 {
			continue
		}

		synthesis, err := a.synth.Synthesize(ctx, g.FeedTitle, g.Records)
		if err != nil {
			a.log.Warn("group synthesis failed, using fallback",
				logger.String("feed_title", g.FeedTitle),
				logger.Int("records", len(g.Records)),
				logger.Error(err),
			)
			synthesis = FallbackSynthesis(g.FeedTitle, len(g.Records))
		}
		g.Synthesis = synthesis
	}
}

// FallbackSynthesis is used when the synthesizer fails.
func FallbackSynthesis(feedTitle string, n int) *domain.Synthesis {
	return &domain.Synthesis{
		Summary:  fmt.Sprintf("%d articles related to %s were found.", n, feedTitle),
		Fallback: true,
	}
}
