// Package config defines the dailymail configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skehlet/dailymail/infrastructure/circuitbreaker"
	infraconfig "github.com/skehlet/dailymail/infrastructure/config"
	"github.com/skehlet/dailymail/infrastructure/logger"
	infraredis "github.com/skehlet/dailymail/infrastructure/redis"
	"github.com/skehlet/dailymail/infrastructure/retry"
	"github.com/skehlet/dailymail/internal/domain"
)

// Default values.
const (
	defaultServiceName = "dailymail"

	defaultFeedTimeout = 30 * time.Second
	defaultUserAgent   = "dailymail/1.0 (+https://github.com/skehlet/dailymail)"

	defaultRetention      = 365 * 24 * time.Hour
	defaultSweepPageSize  = 100
	defaultSweepBatchSize = 25
	defaultSweepBatchRate = 2.0
	defaultSweepPagePause = time.Second

	defaultScraperQueue    = "dailymail:scraper"
	defaultSummarizerQueue = "dailymail:summarizer"
	defaultDigestQueue     = "dailymail:digest"
	defaultConsumerGroup   = "dailymail"
	defaultVisibility      = 5 * time.Minute
	defaultMaxReceives     = 5
	defaultMessageTimeout  = 2 * time.Minute

	defaultBucket         = "dailymail-staging"
	defaultStagingPrefix  = "incoming/"
	defaultStorageTimeout = 30 * time.Second

	defaultScraperTimeout   = 20 * time.Second
	defaultScraperUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36"
	defaultMaxBodyBytes = 5 << 20

	defaultLLMModel     = "claude-sonnet-4-5"
	defaultLLMTimeout   = 60 * time.Second
	defaultLLMMaxTokens = 1024
	defaultMaxTextChars = 100_000

	defaultLLMBreakerThreshold = 3
	defaultLLMBreakerCooldown  = 2 * time.Minute

	defaultTimezone      = "America/Los_Angeles"
	defaultSubjectPrefix = "Daily Digest"

	defaultSMTPPort    = 587
	defaultSMTPTimeout = 30 * time.Second

	defaultLinkReaderPort = 8090

	defaultRSSSchedule     = "*/30 * * * *"
	defaultWorkersSchedule = "*/5 * * * *"
	defaultDigestSchedule  = "0 6 * * *"
)

// DefaultPaywallTexts are page fragments that mark a paywalled article.
var DefaultPaywallTexts = []string{
	"This post is for paid subscribers",
	"This post is for paying subscribers only",
}

// Config is the root of config.yml.
type Config struct {
	Service     ServiceConfig              `yaml:"service"`
	Logging     logger.Config              `yaml:"logging"`
	Database    infraconfig.DatabaseConfig `yaml:"database"`
	Redis       infraredis.Config          `yaml:"redis"`
	Queues      QueuesConfig               `yaml:"queues"`
	Storage     StorageConfig              `yaml:"storage"`
	Feeds       FeedsConfig                `yaml:"feeds"`
	Ledger      LedgerConfig               `yaml:"ledger"`
	Scraper     ScraperConfig              `yaml:"scraper"`
	LLM         LLMConfig                  `yaml:"llm"`
	Digest      DigestConfig               `yaml:"digest"`
	Mail        MailConfig                 `yaml:"mail"`
	LinkReader  LinkReaderConfig           `yaml:"link_reader"`
	EmailReader EmailReaderConfig          `yaml:"email_reader"`
	Scheduler   SchedulerConfig            `yaml:"scheduler"`
}

// ServiceConfig identifies the process in logs.
type ServiceConfig struct {
	Name  string `yaml:"name"`
	Debug bool   `env:"APP_DEBUG" yaml:"debug"`

	// PprofAddress serves /debug/pprof for link-reader and scheduler; empty disables.
	PprofAddress string `env:"PPROF_ADDRESS" yaml:"pprof_address"`
}

// QueuesConfig names the Redis streams between stages.
type QueuesConfig struct {
	Scraper    string `env:"SCRAPER_QUEUE"    yaml:"scraper"`
	Summarizer string `env:"SUMMARIZER_QUEUE" yaml:"summarizer"`
	Digest     string `env:"DIGEST_QUEUE"     yaml:"digest"`
	Group      string `yaml:"group"`
	Consumer   string `env:"QUEUE_CONSUMER" yaml:"consumer"`
	// VisibilityTimeout is how long a received message stays invisible
	// before another receive may reclaim it.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	// MaxReceives moves a message to the dead-letter stream once exceeded.
	MaxReceives int `yaml:"max_receives"`
	// MessageTimeout bounds processing of a single batch message.
	MessageTimeout time.Duration `yaml:"message_timeout"`
}

// StorageConfig configures the MinIO/S3 staging bucket.
type StorageConfig struct {
	Endpoint  string        `env:"MINIO_ENDPOINT"   yaml:"endpoint"`
	AccessKey string        `env:"MINIO_ACCESS_KEY" yaml:"access_key"`
	SecretKey string        `env:"MINIO_SECRET_KEY" yaml:"secret_key"`
	UseSSL    bool          `env:"MINIO_USE_SSL"    yaml:"use_ssl"`
	Bucket    string        `env:"STAGING_BUCKET"   yaml:"bucket"`
	Prefix    string        `yaml:"prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// FeedsConfig lists the feeds read by rss-reader.
type FeedsConfig struct {
	Sources []domain.FeedSource `yaml:"sources"`
	// SourcesJSON replaces Sources when set. It holds a JSON array whose
	// items are URL strings or {"url", "context"} objects.
	SourcesJSON string        `env:"RSS_FEEDS" yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
}

// resolveSources decodes SourcesJSON into Sources.
func (f *FeedsConfig) resolveSources() error {
	if f.SourcesJSON == "" {
		return nil
	}
	var sources []domain.FeedSource
	if err := json.Unmarshal([]byte(f.SourcesJSON), &sources); err != nil {
		return &infraconfig.ValidationError{Field: "RSS_FEEDS", Message: err.Error()}
	}
	f.Sources = sources
	return nil
}

// LedgerConfig tunes the processed-entry retention sweep.
type LedgerConfig struct {
	Retention time.Duration `env:"LEDGER_RETENTION" yaml:"retention"`
	PageSize  int           `yaml:"page_size"`
	BatchSize int           `yaml:"batch_size"`
	// BatchesPerSecond paces delete batches.
	BatchesPerSecond float64       `yaml:"batches_per_second"`
	PagePause        time.Duration `yaml:"page_pause"`
}

// ScraperConfig configures article fetching.
type ScraperConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	PaywallTexts []string      `yaml:"paywall_texts"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Retry        retry.Policy  `yaml:"retry"`
}

// LLMConfig configures the Anthropic client.
type LLMConfig struct {
	APIKey       string        `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model        string        `env:"LLM_MODEL"         yaml:"model"`
	BaseURL      string        `env:"ANTHROPIC_BASE_URL" yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxTokens    int64         `yaml:"max_tokens"`
	MaxTextChars int           `yaml:"max_text_chars"`
	Retry        retry.Policy  `yaml:"retry"`

	// Breaker stops LLM calls for a cooldown after consecutive failures.
	Breaker circuitbreaker.Config `yaml:"breaker"`
}

// DigestConfig configures aggregation and delivery.
type DigestConfig struct {
	Timezone      string `env:"DIGEST_TIMEZONE"       yaml:"timezone"`
	SubjectPrefix string `yaml:"subject_prefix"`
	SkipSynthesis bool   `env:"DIGEST_SKIP_SYNTHESIS" yaml:"skip_synthesis"`
	SkipOpening   bool   `env:"DIGEST_SKIP_OPENING"   yaml:"skip_opening"`
	From          string `env:"DIGEST_FROM"           yaml:"from"`
	To            string `env:"DIGEST_TO"             yaml:"to"`
}

// MailConfig configures SMTP delivery.
type MailConfig struct {
	Host     string        `env:"SMTP_HOST"     yaml:"host"`
	Port     int           `env:"SMTP_PORT"     yaml:"port"`
	Username string        `env:"SMTP_USERNAME" yaml:"username"`
	Password string        `env:"SMTP_PASSWORD" yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    retry.Policy  `yaml:"retry"`
}

// LinkReaderConfig configures the link submission endpoint.
type LinkReaderConfig struct {
	Server infraconfig.ServerConfig `yaml:"server"`
	// AllowedOrigins enables CORS for bookmarklet submissions.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// EmailReaderConfig configures forwarded-mail intake.
type EmailReaderConfig struct {
	AllowedSenders []string `env:"EMAIL_ALLOWED_SENDERS" yaml:"allowed_senders"`
}

// SchedulerConfig holds cron expressions for long-running mode.
type SchedulerConfig struct {
	RSSReader string `yaml:"rss_reader"`
	// Workers drains the scraper and summarizer queues.
	Workers  string `yaml:"workers"`
	Digest   string `yaml:"digest"`
	Timezone string `yaml:"timezone"`
}

// Load reads path, applies defaults and validates.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults(path, SetDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err = cfg.Feeds.resolveSources(); err != nil {
		return nil, fmt.Errorf("feeds: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks settings every command depends on. Stage-specific
// requirements, such as SMTP credentials, are checked where they are used.
func (c *Config) Validate() error {
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if err := infraconfig.ValidateTimezone("digest.timezone", c.Digest.Timezone); err != nil {
		return err
	}
	if c.Scheduler.Timezone != "" {
		if err := infraconfig.ValidateTimezone("scheduler.timezone", c.Scheduler.Timezone); err != nil {
			return err
		}
	}
	for i, src := range c.Feeds.Sources {
		if err := infraconfig.ValidateHTTPURL(fmt.Sprintf("feeds.sources[%d]", i), src.URL); err != nil {
			return err
		}
	}
	if c.Ledger.Retention <= 0 {
		return &infraconfig.ValidationError{Field: "ledger.retention", Message: "must be positive"}
	}
	if c.Queues.MaxReceives < 1 {
		return &infraconfig.ValidationError{Field: "queues.max_receives", Message: "must be at least 1"}
	}
	return infraconfig.ValidatePort("link_reader.server.port", c.LinkReader.Server.Port)
}

// Recipients splits the comma-separated digest.to list.
func (d *DigestConfig) Recipients() []string {
	var out []string
	for _, addr := range strings.Split(d.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// ValidateMail checks the settings the digest command needs to send.
func (c *Config) ValidateMail() error {
	required := [][2]string{
		{"mail.host", c.Mail.Host},
		{"digest.from", c.Digest.From},
		{"digest.to", c.Digest.To},
	}
	for _, r := range required {
		if err := infraconfig.ValidateRequired(r[0], r[1]); err != nil {
			return err
		}
	}
	return infraconfig.ValidatePort("mail.port", c.Mail.Port)
}

// SetDefaults fills every unset value.
func SetDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaultServiceName
	}
	cfg.Logging.SetDefaults()
	cfg.Database.SetDefaults()
	cfg.Redis.SetDefaults()
	if cfg.LinkReader.Server.Port == 0 {
		cfg.LinkReader.Server.Port = defaultLinkReaderPort
	}
	cfg.LinkReader.Server.SetDefaults()

	setQueueDefaults(&cfg.Queues)
	setStorageDefaults(&cfg.Storage)
	setFeedDefaults(&cfg.Feeds)
	setLedgerDefaults(&cfg.Ledger)
	setScraperDefaults(&cfg.Scraper)
	setLLMDefaults(&cfg.LLM)
	setDigestDefaults(&cfg.Digest)
	setMailDefaults(&cfg.Mail)
	setSchedulerDefaults(&cfg.Scheduler)
}

func setQueueDefaults(q *QueuesConfig) {
	if q.Scraper == "" {
		q.Scraper = defaultScraperQueue
	}
	if q.Summarizer == "" {
		q.Summarizer = defaultSummarizerQueue
	}
	if q.Digest == "" {
		q.Digest = defaultDigestQueue
	}
	if q.Group == "" {
		q.Group = defaultConsumerGroup
	}
	if q.Consumer == "" {
		q.Consumer = defaultServiceName
	}
	if q.VisibilityTimeout == 0 {
		q.VisibilityTimeout = defaultVisibility
	}
	if q.MaxReceives == 0 {
		q.MaxReceives = defaultMaxReceives
	}
	if q.MessageTimeout == 0 {
		q.MessageTimeout = defaultMessageTimeout
	}
}

func setStorageDefaults(s *StorageConfig) {
	if s.Endpoint == "" {
		s.Endpoint = "localhost:9000"
	}
	if s.Bucket == "" {
		s.Bucket = defaultBucket
	}
	if s.Prefix == "" {
		s.Prefix = defaultStagingPrefix
	}
	if s.Timeout == 0 {
		s.Timeout = defaultStorageTimeout
	}
}

func setFeedDefaults(f *FeedsConfig) {
	if f.Timeout == 0 {
		f.Timeout = defaultFeedTimeout
	}
	if f.UserAgent == "" {
		f.UserAgent = defaultUserAgent
	}
}

func setLedgerDefaults(l *LedgerConfig) {
	if l.Retention == 0 {
		l.Retention = defaultRetention
	}
	if l.PageSize == 0 {
		l.PageSize = defaultSweepPageSize
	}
	if l.BatchSize == 0 {
		l.BatchSize = defaultSweepBatchSize
	}
	if l.BatchesPerSecond == 0 {
		l.BatchesPerSecond = defaultSweepBatchRate
	}
	if l.PagePause == 0 {
		l.PagePause = defaultSweepPagePause
	}
}

func setScraperDefaults(s *ScraperConfig) {
	if s.Timeout == 0 {
		s.Timeout = defaultScraperTimeout
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultScraperUserAgent
	}
	if len(s.PaywallTexts) == 0 {
		s.PaywallTexts = DefaultPaywallTexts
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = defaultMaxBodyBytes
	}
	setShortRetryDefaults(&s.Retry)
}

func setLLMDefaults(l *LLMConfig) {
	if l.Model == "" {
		l.Model = defaultLLMModel
	}
	if l.Timeout == 0 {
		l.Timeout = defaultLLMTimeout
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = defaultLLMMaxTokens
	}
	if l.MaxTextChars == 0 {
		l.MaxTextChars = defaultMaxTextChars
	}
	l.Retry.SetDefaults()
	if l.Breaker.FailureThreshold == 0 && l.Breaker.Cooldown == 0 {
		l.Breaker.FailureThreshold = defaultLLMBreakerThreshold
		l.Breaker.Cooldown = defaultLLMBreakerCooldown
	}
}

func setDigestDefaults(d *DigestConfig) {
	if d.Timezone == "" {
		d.Timezone = defaultTimezone
	}
	if d.SubjectPrefix == "" {
		d.SubjectPrefix = defaultSubjectPrefix
	}
}

func setMailDefaults(m *MailConfig) {
	if m.Port == 0 {
		m.Port = defaultSMTPPort
	}
	if m.Timeout == 0 {
		m.Timeout = defaultSMTPTimeout
	}
	setShortRetryDefaults(&m.Retry)
}

// setShortRetryDefaults is used for calls that are not rate limited, where
// the LLM's 10-30s backoff would only slow a run down.
func setShortRetryDefaults(p *retry.Policy) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 2
	}
	if p.MinBackoff == 0 {
		p.MinBackoff = 2 * time.Second
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 5 * time.Second
	}
	p.SetDefaults()
}

func setSchedulerDefaults(s *SchedulerConfig) {
	if s.RSSReader == "" {
		s.RSSReader = defaultRSSSchedule
	}
	if s.Workers == "" {
		s.Workers = defaultWorkersSchedule
	}
	if s.Digest == "" {
		s.Digest = defaultDigestSchedule
	}
}
