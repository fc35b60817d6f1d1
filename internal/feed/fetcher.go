package feed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/skehlet/dailymail/internal/domain"
)

// FetchCacheStore reads and writes the validators stored per feed.
type FetchCacheStore interface {
	Get(ctx context.Context, sourceURL string) (*domain.FetchCache, error)
	Upsert(ctx context.Context, sourceURL, etag, lastModified string) error
}

// FetchResult is the outcome of one conditional fetch.
type FetchResult struct {
	SourceURL       string
	Status          int
	FeedTitle       string
	FeedDescription string
	Entries         []Entry

	ETag         string
	LastModified string

	PreviousETag         string
	PreviousLastModified string
	// Cached is true when a fetch cache row existed before this fetch.
	Cached bool
}

// NotModified reports whether the server answered 304.
func (r *FetchResult) NotModified() bool {
	return r.Status == http.StatusNotModified
}

// ValidatorsChanged reports whether the server returned different validators
// than the stored ones.
func (r *FetchResult) ValidatorsChanged() bool {
	return r.ETag != r.PreviousETag || r.LastModified != r.PreviousLastModified
}

// NeedsCacheWrite is true after the first successful fetch of a feed, and
// afterwards only when the validators changed.
func (r *FetchResult) NeedsCacheWrite() bool {
	return !r.Cached || r.ValidatorsChanged()
}

// ConditionalFetcher fetches feeds with the validators from the fetch cache.
type ConditionalFetcher struct {
	http  HTTPFetcher
	cache FetchCacheStore
}

// NewConditionalFetcher creates a ConditionalFetcher.
func NewConditionalFetcher(httpFetcher HTTPFetcher, cache FetchCacheStore) *ConditionalFetcher {
	return &ConditionalFetcher{http: httpFetcher, cache: cache}
}

// Fetch performs a conditional GET for src. A 304 yields a result with no
// entries and the stored validators. Every failure to obtain a usable feed
// is returned as a *PollError, except fetch cache read failures which are
// returned as store errors.
func (f *ConditionalFetcher) Fetch(ctx context.Context, src domain.FeedSource) (*FetchResult, error) {
	cached, err := f.cache.Get(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("read fetch cache: %w", err)
	}

	result := &FetchResult{SourceURL: src.URL}
	if cached != nil {
		result.Cached = true
		result.PreviousETag = cached.ETag
		result.PreviousLastModified = cached.LastModified
	}

	resp, fetchErr := f.http.Fetch(ctx, src.URL, result.PreviousETag, result.PreviousLastModified)
	if fetchErr != nil {
		return nil, ClassifyNetworkError(fetchErr, src.URL)
	}

	if resp == nil || resp.StatusCode == 0 {
		return nil, ClassifyMissingStatus(src.URL)
	}

	result.Status = resp.StatusCode

	if resp.StatusCode == http.StatusNotModified {
		result.ETag = result.PreviousETag
		result.LastModified = result.PreviousLastModified
		return result, nil
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, ClassifyHTTPStatus(resp.StatusCode, src.URL)
	}

	parsed, parseErr := ParseFeed(ctx, resp.Body)
	if parseErr != nil {
		return nil, ClassifyParseError(parseErr, src.URL)
	}

	result.FeedTitle = parsed.Title
	result.FeedDescription = parsed.Description
	result.Entries = parsed.Entries
	result.ETag = resp.ETag
	result.LastModified = resp.LastModified

	return result, nil
}

// StoreValidators writes the validators of result to the fetch cache.
func (f *ConditionalFetcher) StoreValidators(ctx context.Context, result *FetchResult) error {
	if err := f.cache.Upsert(ctx, result.SourceURL, result.ETag, result.LastModified); err != nil {
		return fmt.Errorf("write fetch cache: %w", err)
	}

	return nil
}
