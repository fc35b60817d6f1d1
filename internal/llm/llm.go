// Package llm wraps the Anthropic Messages API behind a small Completer
// interface used by the summarizer and the digest.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/infrastructure/retry"
)

var (
	// ErrEmptyCompletion is returned when the model answers with no text.
	ErrEmptyCompletion = errors.New("llm returned no text")
	// ErrNoJSON is returned when a completion holds no JSON object.
	ErrNoJSON = errors.New("no json object in completion")
)

const statusOverloaded = 529

// Completer sends one prompt and returns the model's text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config configures the Anthropic client.
type Config struct {
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int64
	// BaseURL overrides the API endpoint; tests point it at httptest.
	BaseURL string
	Retry   retry.Policy
}

// AnthropicCompleter implements Completer with anthropic-sdk-go.
type AnthropicCompleter struct {
	client anthropic.Client
	cfg    Config
	log    logger.Logger
}

// NewAnthropicCompleter builds a client. SDK retries are disabled; the
// retry policy owns backoff.
func NewAnthropicCompleter(cfg Config, log logger.Logger) *AnthropicCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicCompleter{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		log:    log,
	}
}

// Complete sends prompt with the given system prompt, retrying rate limits,
// overload and server errors. Each attempt gets its own timeout.
func (c *AnthropicCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	var text string
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		text, callErr = c.complete(ctx, system, prompt)
		if callErr != nil {
			c.log.Warn("llm call failed",
				logger.String("model", c.cfg.Model),
				logger.Error(callErr),
			)
		}
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return text, nil
}

func (c *AnthropicCompleter) complete(ctx context.Context, system, prompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}

	c.log.Debug("llm call completed",
		logger.String("model", c.cfg.Model),
		logger.Int64("input_tokens", msg.Usage.InputTokens),
		logger.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return text, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == statusOverloaded,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return retry.MarkRetryable(err)
		}
	}
	return err
}

// DecodeJSON unmarshals the first JSON object found in text into v. Models
// sometimes wrap JSON in prose or code fences.
func DecodeJSON(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	return nil
}

// Truncate cuts s to at most n runes. n <= 0 leaves s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
