package bootstrap

import (
	"context"

	"github.com/gin-gonic/gin"

	infragin "github.com/skehlet/dailymail/infrastructure/gin"
	infrahttp "github.com/skehlet/dailymail/infrastructure/http"
	"github.com/skehlet/dailymail/infrastructure/logger"
	inframetrics "github.com/skehlet/dailymail/infrastructure/metrics"
	"github.com/skehlet/dailymail/internal/database"
	"github.com/skehlet/dailymail/internal/digest"
	"github.com/skehlet/dailymail/internal/emailreader"
	"github.com/skehlet/dailymail/internal/feed"
	"github.com/skehlet/dailymail/internal/linkreader"
	"github.com/skehlet/dailymail/internal/llm"
	"github.com/skehlet/dailymail/internal/mail"
	"github.com/skehlet/dailymail/internal/queue"
	"github.com/skehlet/dailymail/internal/scraper"
	"github.com/skehlet/dailymail/internal/summarizer"
)

// Ledger returns the processed-entry ledger.
func (d *Deps) Ledger(ctx context.Context) (*database.LedgerRepository, error) {
	db, err := d.DB(ctx)
	if err != nil {
		return nil, err
	}
	lc := d.Config.Ledger
	return database.NewLedgerRepository(db, database.SweepConfig{
		PageSize:         lc.PageSize,
		BatchSize:        lc.BatchSize,
		BatchesPerSecond: lc.BatchesPerSecond,
		PagePause:        lc.PagePause,
	}), nil
}

// FetchCache returns the per-source validator cache.
func (d *Deps) FetchCache(ctx context.Context) (*database.FetchCacheRepository, error) {
	db, err := d.DB(ctx)
	if err != nil {
		return nil, err
	}
	return database.NewFetchCacheRepository(db), nil
}

// RSSReader builds the ingest cycle: conditional fetch, normalize, publish
// to the scraper queue, then sweep the ledger.
func (d *Deps) RSSReader(ctx context.Context) (*feed.Cycle, error) {
	ledger, err := d.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	cache, err := d.FetchCache(ctx)
	if err != nil {
		return nil, err
	}
	scraperQueue, err := d.QueueByName(ctx, QueueScraper)
	if err != nil {
		return nil, err
	}

	fc := d.Config.Feeds
	fetcher := feed.NewConditionalFetcher(
		feed.NewHTTPFetcher(infrahttp.NewClient(infrahttp.ClientConfig{Timeout: fc.Timeout}), fc.UserAgent),
		cache,
	)
	poller := feed.NewPoller(fetcher, feed.NewNormalizer(ledger, d.Logger, d.Metrics), scraperQueue, d.Logger, d.Metrics)

	return feed.NewCycle(poller, ledger, d.Config.Ledger.Retention, d.Logger, d.Metrics), nil
}

// Completer returns the Anthropic-backed completer behind a circuit breaker.
func (d *Deps) Completer() llm.Completer {
	if d.completer != nil {
		return d.completer
	}

	lc := d.Config.LLM
	anthropic := llm.NewAnthropicCompleter(llm.Config{
		APIKey:    lc.APIKey,
		Model:     lc.Model,
		Timeout:   lc.Timeout,
		MaxTokens: lc.MaxTokens,
		BaseURL:   lc.BaseURL,
		Retry:     lc.Retry,
	}, d.Logger)

	d.completer = llm.NewBreakerCompleter(anthropic, lc.Breaker, d.Logger)
	return d.completer
}

// Mailer returns the SMTP mailer.
func (d *Deps) Mailer() mail.Mailer {
	mc := d.Config.Mail
	return mail.NewSMTPMailer(mail.Config{
		Host:     mc.Host,
		Port:     mc.Port,
		Username: mc.Username,
		Password: mc.Password,
		Timeout:  mc.Timeout,
		Retry:    mc.Retry,
	}, d.Logger)
}

// ScraperStage returns the scraper queue and its handler.
func (d *Deps) ScraperStage(ctx context.Context) (*queue.Queue, queue.Handler, error) {
	in, err := d.QueueByName(ctx, QueueScraper)
	if err != nil {
		return nil, nil, err
	}
	out, err := d.QueueByName(ctx, QueueSummarizer)
	if err != nil {
		return nil, nil, err
	}
	stager, err := d.Stager(ctx)
	if err != nil {
		return nil, nil, err
	}

	sc := d.Config.Scraper
	pages := scraper.New(infrahttp.NewClient(infrahttp.ClientConfig{Timeout: sc.Timeout}), scraper.Config{
		Timeout:      sc.Timeout,
		UserAgent:    sc.UserAgent,
		PaywallTexts: sc.PaywallTexts,
		MaxBodyBytes: sc.MaxBodyBytes,
		Retry:        sc.Retry,
	}, d.Logger)

	return in, scraper.NewStage(pages, stager, out, d.Logger).Handle, nil
}

// SummarizerStage returns the summarizer queue and its handler.
func (d *Deps) SummarizerStage(ctx context.Context) (*queue.Queue, queue.Handler, error) {
	in, err := d.QueueByName(ctx, QueueSummarizer)
	if err != nil {
		return nil, nil, err
	}
	out, err := d.QueueByName(ctx, QueueDigest)
	if err != nil {
		return nil, nil, err
	}
	stager, err := d.Stager(ctx)
	if err != nil {
		return nil, nil, err
	}

	s := summarizer.New(stager, d.Completer(), out, d.Config.LLM.MaxTextChars, d.Logger)
	return in, s.Handle, nil
}

// DrainStage drains q through handler and logs the outcome. Failed
// messages stay on the queue for redelivery and are not an error here.
func (d *Deps) DrainStage(ctx context.Context, q *queue.Queue, handler queue.Handler) (queue.BatchResult, error) {
	result, err := q.DrainAndProcess(ctx, handler)

	fields := []logger.Field{
		logger.String("stream", q.Stream()),
		logger.Int("succeeded", len(result.Succeeded)),
		logger.Int("failed", len(result.Failed)),
	}
	if len(result.Failed) > 0 {
		fields = append(fields, logger.Strings("failed_ids", result.Failed))
		d.Logger.Warn("batch partially failed", fields...)
	} else {
		d.Logger.Info("queue drained", fields...)
	}

	return result, err
}

// RunWorkers drains the scraper queue, then the summarizer queue.
func (d *Deps) RunWorkers(ctx context.Context) error {
	q, handler, err := d.ScraperStage(ctx)
	if err != nil {
		return err
	}
	if _, err = d.DrainStage(ctx, q, handler); err != nil {
		return err
	}

	q, handler, err = d.SummarizerStage(ctx)
	if err != nil {
		return err
	}
	_, err = d.DrainStage(ctx, q, handler)
	return err
}

// DigestBuilder returns a dispatcher that can only Preview: it has no
// queue and no mailer.
func (d *Deps) DigestBuilder() (*digest.Dispatcher, error) {
	return d.dispatcher(nil, nil)
}

// Dispatcher returns the digest dispatcher reading the digest queue.
func (d *Deps) Dispatcher(ctx context.Context) (*digest.Dispatcher, error) {
	if err := d.Config.ValidateMail(); err != nil {
		return nil, err
	}
	source, err := d.QueueByName(ctx, QueueDigest)
	if err != nil {
		return nil, err
	}
	return d.dispatcher(source, d.Mailer())
}

func (d *Deps) dispatcher(source digest.Source, mailer mail.Mailer) (*digest.Dispatcher, error) {
	dc := d.Config.Digest
	loc := d.Location()

	renderer, err := digest.NewRenderer(dc.SubjectPrefix, loc)
	if err != nil {
		return nil, err
	}

	var (
		synth  digest.Synthesizer
		opener digest.Opener
	)
	if !dc.SkipSynthesis || !dc.SkipOpening {
		completer := d.Completer()
		if !dc.SkipSynthesis {
			synth = digest.NewLLMSynthesizer(completer, d.Config.LLM.MaxTextChars)
		}
		if !dc.SkipOpening {
			opener = digest.NewLLMOpener(completer, d.Config.LLM.MaxTextChars)
		}
	}

	return digest.NewDispatcher(
		source,
		digest.NewAggregator(loc, synth, d.Logger),
		opener,
		renderer,
		mailer,
		digest.DispatcherConfig{From: dc.From, To: dc.Recipients()},
		d.Logger,
		d.Metrics,
	), nil
}

// EmailReader returns the forwarded-mail reader. The mailer is only used
// to return Gmail forwarding confirmations.
func (d *Deps) EmailReader(ctx context.Context) (*emailreader.Reader, error) {
	stager, err := d.Stager(ctx)
	if err != nil {
		return nil, err
	}
	notify, err := d.QueueByName(ctx, QueueSummarizer)
	if err != nil {
		return nil, err
	}

	var mailer mail.Mailer
	if d.Config.Mail.Host != "" {
		mailer = d.Mailer()
	}

	return emailreader.NewReader(stager, notify, mailer, emailreader.Config{
		AllowedSenders: d.Config.EmailReader.AllowedSenders,
		From:           d.Config.Digest.From,
	}, d.Logger), nil
}

// LinkReaderServer returns the gin server for link submissions.
func (d *Deps) LinkReaderServer(ctx context.Context) (*infragin.Server, error) {
	client, err := d.Redis(ctx)
	if err != nil {
		return nil, err
	}
	out, err := d.QueueByName(ctx, QueueScraper)
	if err != nil {
		return nil, err
	}

	handler := linkreader.NewHandler(out, d.Logger, d.Metrics)
	httpMetrics := inframetrics.NewHTTPMetrics(d.Registry, "dailymail")
	checks := map[string]infragin.HealthChecker{
		"redis": infragin.PingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}),
	}

	return infragin.NewServer(d.Config.LinkReader.Server, infragin.Options{
		ServiceName:    d.Config.Service.Name,
		Debug:          d.Config.Service.Debug,
		AllowedOrigins: d.Config.LinkReader.AllowedOrigins,
	}, d.Logger, func(router *gin.Engine) {
		router.Use(httpMetrics.Middleware())
		infragin.RegisterHealthRoutes(router, d.Config.Service.Name, checks)
		handler.Register(router, d.Registry)
	}), nil
}
