// Package scraper fetches article pages and extracts their readable text.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/infrastructure/retry"
)

// UnknownTitle is used when a page has no <title>.
const UnknownTitle = "Unknown"

// Page is what the scraper extracted from one URL.
type Page struct {
	Title     string
	Text      string
	Paywalled bool
}

// Config configures a Scraper.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	PaywallTexts []string
	MaxBodyBytes int64
	Retry        retry.Policy
}

// Scraper downloads pages over HTTP.
type Scraper struct {
	client *http.Client
	cfg    Config
	log    logger.Logger
}

// New creates a Scraper. A nil client gets one with cfg.Timeout.
func New(client *http.Client, cfg Config, log logger.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Scraper{client: client, cfg: cfg, log: log}
}

// StatusError is a non-2xx page response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// Scrape fetches rawURL and extracts its title, text and paywall state.
// Rate limiting and server errors are retried by the configured policy.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || pageURL.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	var body []byte
	err = s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		body, fetchErr = s.fetch(ctx, rawURL)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	page, err := s.extract(body, pageURL)
	if err != nil {
		return nil, err
	}

	s.log.Debug("scraped page",
		logger.String("url", rawURL),
		logger.String("title", page.Title),
		logger.Int("text_len", len(page.Text)),
		logger.Bool("paywalled", page.Paywalled),
	)

	return page, nil
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, retry.MarkRetryable(statusErr)
		}
		return nil, statusErr
	}

	var reader io.Reader = resp.Body
	if s.cfg.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, s.cfg.MaxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	return body, nil
}

// extract pulls the title with goquery and the article text with
// readability, falling back to paragraph text when readability finds nothing.
func (s *Scraper) extract(body []byte, pageURL *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{
		Title:     pageTitle(doc),
		Paywalled: s.isPaywalled(doc.Text()),
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		page.Text = strings.TrimSpace(article.TextContent)
	}
	if page.Text == "" {
		page.Text = paragraphText(doc)
	}

	return page, nil
}

func (s *Scraper) isPaywalled(text string) bool {
	for _, marker := range s.cfg.PaywallTexts {
		if marker != "" && strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func pageTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}

	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}

	return UnknownTitle
}

func paragraphText(doc *goquery.Document) string {
	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}
