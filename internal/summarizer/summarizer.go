// Package summarizer turns staged records into summarized digest entries.
package summarizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/llm"
	"github.com/skehlet/dailymail/internal/queue"
)

var googleAlertTitle = regexp.MustCompile(`Google Alert - (.+)`)

// RecordStore reads and removes staged records.
type RecordStore interface {
	Load(ctx context.Context, key string) (domain.Record, error)
	Remove(ctx context.Context, key string) error
}

// Publisher sends summarized records to the digest queue.
type Publisher interface {
	Send(ctx context.Context, body any) (string, error)
}

// Result is the JSON object the model is asked to return.
type Result struct {
	Summary              string `json:"summary"`
	NotableAspects       string `json:"notable_aspects"`
	Relevance            string `json:"relevance"`
	RelevanceExplanation string `json:"relevance_explanation"`
}

// Summarizer consumes summarizer queue notices.
type Summarizer struct {
	store        RecordStore
	completer    llm.Completer
	digest       Publisher
	maxTextChars int
	log          logger.Logger
}

// New creates a Summarizer. maxTextChars bounds the article text sent to
// the model.
func New(store RecordStore, completer llm.Completer, digest Publisher, maxTextChars int, log logger.Logger) *Summarizer {
	return &Summarizer{
		store:        store,
		completer:    completer,
		digest:       digest,
		maxTextChars: maxTextChars,
		log:          log,
	}
}

// Handle processes one summarizer queue message.
func (s *Summarizer) Handle(ctx context.Context, msg queue.Message) error {
	var notice domain.StagedNotice
	if err := msg.Decode(&notice); err != nil {
		return err
	}
	if notice.StagingKey == "" {
		return fmt.Errorf("message %s: empty staging key", msg.ID)
	}

	rec, err := s.store.Load(ctx, notice.StagingKey)
	if err != nil {
		return fmt.Errorf("load staged record: %w", err)
	}

	result, err := s.Summarize(ctx, rec)
	if err != nil {
		return err
	}
	Merge(&rec, result)

	if _, err = s.digest.Send(ctx, rec); err != nil {
		return fmt.Errorf("enqueue digest record: %w", err)
	}

	// The record is already on the digest queue; a leftover staging object
	// is harmless, a second digest entry is not.
	if err = s.store.Remove(ctx, notice.StagingKey); err != nil {
		s.log.Warn("failed to remove staged record",
			logger.String("staging_key", notice.StagingKey),
			logger.Error(err),
		)
	}

	s.log.Info("summarized record",
		logger.String("url", rec.URL),
		logger.String("relevance", rec.Relevance),
	)

	return nil
}

// Summarize asks the model about rec. A reply that is not JSON becomes the
// summary verbatim.
func (s *Summarizer) Summarize(ctx context.Context, rec domain.Record) (Result, error) {
	topic := Topic(rec)
	prompt := buildPrompt(rec, topic, s.maxTextChars)

	text, err := s.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("summarize %s: %w", rec.URL, err)
	}

	var result Result
	if err = llm.DecodeJSON(text, &result); err != nil || result.Summary == "" {
		s.log.Warn("summary was not json, keeping raw text",
			logger.String("url", rec.URL),
			logger.Error(err),
		)
		return Result{Summary: text}, nil
	}

	if topic == "" {
		result.Relevance = ""
		result.RelevanceExplanation = ""
	}

	return result, nil
}

// Topic returns the record's topic: its feed context, or the X in a
// "Google Alert - X" feed title or subject.
func Topic(rec domain.Record) string {
	if rec.FeedContext != "" {
		return rec.FeedContext
	}
	for _, title := range []string{rec.FeedTitle, rec.Title} {
		if m := googleAlertTitle.FindStringSubmatch(title); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// Merge copies result into rec.
func Merge(rec *domain.Record, result Result) {
	rec.Summary = strings.TrimSpace(result.Summary)
	rec.NotableAspects = strings.TrimSpace(result.NotableAspects)
	rec.Relevance = strings.TrimSpace(result.Relevance)
	rec.RelevanceExplanation = strings.TrimSpace(result.RelevanceExplanation)
}
