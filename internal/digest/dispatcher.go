package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/domain"
	"github.com/skehlet/dailymail/internal/mail"
	"github.com/skehlet/dailymail/internal/metrics"
	"github.com/skehlet/dailymail/internal/queue"
)

// Source is the digest queue.
type Source interface {
	Drain(ctx context.Context) ([]queue.Message, error)
	DeleteBatch(ctx context.Context, msgs []queue.Message) error
}

// DispatcherConfig holds the envelope of the digest email.
type DispatcherConfig struct {
	From string
	To   []string
}

// Dispatcher runs one digest: drain, aggregate, render, mail, purge.
type Dispatcher struct {
	source     Source
	aggregator *Aggregator
	opener     Opener
	renderer   *Renderer
	mailer     mail.Mailer
	cfg        DispatcherConfig
	log        logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu        sync.Mutex
	lastState RunState
}

// NewDispatcher creates a Dispatcher. A nil opener always uses the fallback
// opening paragraph.
func NewDispatcher(
	source Source,
	aggregator *Aggregator,
	opener Opener,
	renderer *Renderer,
	mailer mail.Mailer,
	cfg DispatcherConfig,
	log logger.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		source:     source,
		aggregator: aggregator,
		opener:     opener,
		renderer:   renderer,
		mailer:     mailer,
		cfg:        cfg,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

type run struct {
	id    string
	state RunState
	log   logger.Logger
}

func (r *run) advance(state RunState) {
	r.state = state
	r.log.Info("digest run state", logger.String("state", state.String()))
}

// Run performs one digest run. Messages are deleted only after the mailer
// accepted the email; a send error is returned unchanged.
func (d *Dispatcher) Run(ctx context.Context) error {
	id := uuid.NewString()
	r := &run{id: id, log: d.log.With(logger.String("run_id", id))}

	err := d.run(ctx, r)

	d.mu.Lock()
	d.lastState = r.state
	d.mu.Unlock()

	if err != nil {
		r.log.Error("digest run failed",
			logger.String("last_state", r.state.String()),
			logger.Error(err),
		)
	}
	return err
}

// LastState returns the furthest state the most recent Run reached.
// Anything before StateDispatched means nothing was mailed or deleted.
func (d *Dispatcher) LastState() RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastState
}

func (d *Dispatcher) run(ctx context.Context, r *run) error {
	r.advance(StateCollecting)

	msgs, err := d.source.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain digest queue: %w", err)
	}

	records, consumed := DecodeMessages(msgs, r.log)
	if len(records) == 0 {
		r.log.Info("no records, skipping digest", logger.Int("messages", len(msgs)))
		return nil
	}

	digest, rendered, err := d.build(ctx, r, records)
	if err != nil {
		return err
	}

	messageID, err := d.mailer.Send(ctx, mail.Message{
		From:    d.cfg.From,
		To:      d.cfg.To,
		Subject: rendered.Subject,
		Text:    rendered.Text,
		HTML:    rendered.HTML,
	})
	if err != nil {
		r.log.Error("digest send failed, leaving messages queued",
			logger.Int("messages", len(consumed)),
			logger.Error(err),
		)
		return err
	}
	r.advance(StateDispatched)
	d.metrics.DigestSent(digest.RecordCount())

	if err = d.source.DeleteBatch(ctx, consumed); err != nil {
		return fmt.Errorf("purge digest queue after sending %s: %w", messageID, err)
	}
	r.advance(StatePurged)

	r.log.Info("digest sent",
		logger.String("message_id", messageID),
		logger.Int("records", digest.RecordCount()),
		logger.Int("groups", len(digest.Groups)),
	)

	return nil
}

// Preview aggregates and renders records without mailing or deleting
// anything.
func (d *Dispatcher) Preview(ctx context.Context, records []domain.Record) (*domain.Digest, *Rendered, error) {
	id := uuid.NewString()
	r := &run{id: id, log: d.log.With(logger.String("run_id", id), logger.Bool("preview", true))}
	return d.build(ctx, r, records)
}

func (d *Dispatcher) build(ctx context.Context, r *run, records []domain.Record) (*domain.Digest, *Rendered, error) {
	groups := d.aggregator.Group(records)
	r.advance(StateGrouped)
	r.advance(StateSorted)

	d.aggregator.Synthesize(ctx, groups)
	r.advance(StateSynthesized)

	digest := &domain.Digest{
		RunID:       r.id,
		Groups:      groups,
		GeneratedAt: d.now(),
	}
	digest.Opening = d.opening(ctx, r, groups)

	rendered, err := d.renderer.Render(digest)
	if err != nil {
		return nil, nil, fmt.Errorf("render digest: %w", err)
	}
	r.advance(StateRendered)

	return digest, rendered, nil
}

func (d *Dispatcher) opening(ctx context.Context, r *run, groups []domain.DigestGroup) string {
	if d.opener == nil {
		return FallbackOpening(groups)
	}

	text, err := d.opener.Opening(ctx, groups)
	if err != nil || strings.TrimSpace(text) == "" {
		r.log.Warn("opening paragraph failed, using fallback", logger.Error(err))
		return FallbackOpening(groups)
	}
	return strings.TrimSpace(text)
}

// DecodeMessages decodes digest queue messages into records. Undecodable
// messages are logged and left out of consumed so they stay queued.
func DecodeMessages(msgs []queue.Message, log logger.Logger) (records []domain.Record, consumed []queue.Message) {
	for i := range msgs {
		var rec domain.Record
		if err := msgs[i].Decode(&rec); err != nil {
			log.Warn("skipping undecodable digest message",
				logger.String("message_id", msgs[i].ID),
				logger.Error(err),
			)
			continue
		}
		records = append(records, rec)
		consumed = append(consumed, msgs[i])
	}
	return records, consumed
}
