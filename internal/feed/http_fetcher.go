package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPFetcher fetches content from a URL with optional conditional GET headers.
// Empty validators are not sent.
type HTTPFetcher interface {
	Fetch(ctx context.Context, url, etag, lastModified string) (*FetchResponse, error)
}

// FetchResponse represents the result of an HTTP fetch.
type FetchResponse struct {
	StatusCode   int
	Body         string
	ETag         string
	LastModified string
}

// DefaultHTTPFetcher implements HTTPFetcher using net/http.
type DefaultHTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTPFetcher backed by the given http.Client.
func NewHTTPFetcher(client *http.Client, userAgent string) *DefaultHTTPFetcher {
	return &DefaultHTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch performs an HTTP GET with optional conditional headers (ETag,
// Last-Modified). It returns the status code, body, and any caching
// headers present in the response.
func (f *DefaultHTTPFetcher) Fetch(ctx context.Context, url, etag, lastModified string) (*FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("http fetcher new request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	setConditionalHeaders(req, etag, lastModified)

	resp, doErr := f.client.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("http fetcher do request: %w", doErr)
	}
	defer resp.Body.Close()

	return buildFetchResponse(resp)
}

// setConditionalHeaders adds If-None-Match and If-Modified-Since headers
// when non-empty values are provided.
func setConditionalHeaders(req *http.Request, etag, lastModified string) {
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
}

// buildFetchResponse reads the response body and extracts caching headers.
func buildFetchResponse(resp *http.Response) (*FetchResponse, error) {
	var body string

	if resp.StatusCode != http.StatusNotModified {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("http fetcher read body: %w", readErr)
		}

		body = string(raw)
	}

	return &FetchResponse{
		StatusCode:   resp.StatusCode,
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
