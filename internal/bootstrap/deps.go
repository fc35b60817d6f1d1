// Package bootstrap builds the clients and stages shared by dailymail
// commands. Backend clients are created on first use, so a command only
// connects to what it needs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/skehlet/dailymail/infrastructure/logger"
	infraredis "github.com/skehlet/dailymail/infrastructure/redis"
	"github.com/skehlet/dailymail/internal/config"
	"github.com/skehlet/dailymail/internal/database"
	"github.com/skehlet/dailymail/internal/llm"
	"github.com/skehlet/dailymail/internal/metrics"
	"github.com/skehlet/dailymail/internal/queue"
	"github.com/skehlet/dailymail/internal/storage"
)

// Queue names accepted by QueueByName.
const (
	QueueScraper    = "scraper"
	QueueSummarizer = "summarizer"
	QueueDigest     = "digest"
)

// ErrUnknownQueue is returned by QueueByName.
var ErrUnknownQueue = errors.New(`queue must be "scraper", "summarizer" or "digest"`)

// Deps holds the configuration, logger and lazily created clients of one
// command invocation.
type Deps struct {
	Config   *config.Config
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	db        *sqlx.DB
	redis     *redis.Client
	store     *storage.MinioStore
	queues    map[string]*queue.Queue
	completer llm.Completer
	closers   []func() error
}

// New loads configuration from configPath and creates the logger and
// metrics registry. command is attached to every log line.
func New(configPath, command string) (*Deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cfg.Service.Debug {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(logger.String("service", cfg.Service.Name), logger.String("command", command))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Deps{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics.New(reg),
		Registry: reg,
		queues:   make(map[string]*queue.Queue),
	}, nil
}

// Close releases every client in reverse creation order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Warn("close failed", logger.Error(err))
		}
	}
	d.closers = nil
	_ = d.Logger.Sync()
}

// Location is the digest timezone. Config validation guarantees it loads.
func (d *Deps) Location() *time.Location {
	loc, err := time.LoadLocation(d.Config.Digest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerLocation is the cron timezone, defaulting to the digest timezone.
func (d *Deps) SchedulerLocation() *time.Location {
	if d.Config.Scheduler.Timezone == "" {
		return d.Location()
	}
	loc, err := time.LoadLocation(d.Config.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DB connects to Postgres.
func (d *Deps) DB(ctx context.Context) (*sqlx.DB, error) {
	if d.db != nil {
		return d.db, nil
	}

	db, err := database.Open(ctx, d.Config.Database)
	if err != nil {
		return nil, err
	}

	d.db = db
	d.closers = append(d.closers, db.Close)
	d.Logger.Debug("connected to postgres",
		logger.String("host", d.Config.Database.Host),
		logger.String("database", d.Config.Database.Database),
	)
	return db, nil
}

// Redis connects to Redis.
func (d *Deps) Redis(ctx context.Context) (*redis.Client, error) {
	if d.redis != nil {
		return d.redis, nil
	}

	client, err := infraredis.NewClient(ctx, d.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	d.redis = client
	d.closers = append(d.closers, client.Close)
	return client, nil
}

// Queue opens the stream named stream.
func (d *Deps) Queue(ctx context.Context, stream string) (*queue.Queue, error) {
	if q, ok := d.queues[stream]; ok {
		return q, nil
	}

	client, err := d.Redis(ctx)
	if err != nil {
		return nil, err
	}

	qc := d.Config.Queues
	q, err := queue.New(client, queue.Config{
		Stream:            stream,
		Group:             qc.Group,
		Consumer:          qc.Consumer,
		VisibilityTimeout: qc.VisibilityTimeout,
		MaxReceives:       int64(qc.MaxReceives),
		MessageTimeout:    qc.MessageTimeout,
	}, d.Logger, d.Metrics)
	if err != nil {
		return nil, err
	}

	d.queues[stream] = q
	return q, nil
}

// QueueByName opens one of the pipeline queues by its short name.
func (d *Deps) QueueByName(ctx context.Context, name string) (*queue.Queue, error) {
	switch name {
	case QueueScraper:
		return d.Queue(ctx, d.Config.Queues.Scraper)
	case QueueSummarizer:
		return d.Queue(ctx, d.Config.Queues.Summarizer)
	case QueueDigest:
		return d.Queue(ctx, d.Config.Queues.Digest)
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownQueue)
}

// Stager returns the staging area on the MinIO bucket, creating the bucket
// if it does not exist.
func (d *Deps) Stager(ctx context.Context) (*storage.Stager, error) {
	if d.store == nil {
		sc := d.Config.Storage
		store, err := storage.NewMinioStore(storage.Config{
			Endpoint:  sc.Endpoint,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			UseSSL:    sc.UseSSL,
			Bucket:    sc.Bucket,
			Timeout:   sc.Timeout,
		}, d.Logger)
		if err != nil {
			return nil, err
		}
		if err = store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		d.store = store
	}
	return storage.NewStager(d.store, d.Config.Storage.Prefix), nil
}
