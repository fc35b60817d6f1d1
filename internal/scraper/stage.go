package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/queue"
)

// ErrNoURL is returned for queue records without a URL.
var ErrNoURL = errors.New("record has no url")

// PageScraper scrapes one URL.
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string) (*Page, error)
}

// RecordStager writes a record to the staging area.
type RecordStager interface {
	Stage(ctx context.Context, rec domain.Record) (string, error)
}

// Notifier tells the summarizer a record was staged.
type Notifier interface {
	Send(ctx context.Context, body any) (string, error)
}

// Stage consumes scraper queue messages: it scrapes the record's URL,
// stages the enriched record and notifies the summarizer.
type Stage struct {
	scraper PageScraper
	stager  RecordStager
	notify  Notifier
	log     logger.Logger
}

// NewStage creates a Stage.
func NewStage(scraper PageScraper, stager RecordStager, notify Notifier, log logger.Logger) *Stage {
	return &Stage{scraper: scraper, stager: stager, notify: notify, log: log}
}

// Handle processes one scraper queue message.
func (s *Stage) Handle(ctx context.Context, msg queue.Message) error {
	var rec domain.Record
	if err := msg.Decode(&rec); err != nil {
		return err
	}
	if rec.URL == "" {
		return fmt.Errorf("message %s: %w", msg.ID, ErrNoURL)
	}
	if rec.Type == "" {
		rec.Type = domain.RecordTypeURL
	}

	page, err := s.scraper.Scrape(ctx, rec.URL)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", rec.URL, err)
	}

	Enrich(&rec, page)

	key, err := s.stager.Stage(ctx, rec)
	if err != nil {
		return fmt.Errorf("stage %s: %w", rec.URL, err)
	}

	if _, err = s.notify.Send(ctx, domain.StagedNotice{StagingKey: key}); err != nil {
		return fmt.Errorf("notify summarizer for %s: %w", key, err)
	}

	s.log.Info("scraped record",
		logger.String("url", rec.URL),
		logger.String("staging_key", key),
		logger.Bool("paywalled", rec.Paywalled),
	)

	return nil
}

// Enrich copies the scraped page into rec. A title from the feed is kept;
// a paywalled page keeps the feed description as content.
func Enrich(rec *domain.Record, page *Page) {
	if rec.Title == "" {
		rec.Title = page.Title
	}

	rec.Paywalled = page.Paywalled
	if page.Paywalled {
		rec.Content = rec.Description
		return
	}

	rec.Content = page.Text
}
