// Package feed reads RSS and Atom feeds incrementally and turns new entries
// into records for the scraper queue.
package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// httpPrefix is the scheme prefix used to determine if a GUID is a valid URL.
const httpPrefix = "http"

// ParsedFeed is the channel metadata and entries of one feed document.
type ParsedFeed struct {
	Title       string
	Description string
	Entries     []Entry
}

// Entry is a single item of a feed. Published is the raw upstream string.
type Entry struct {
	ID          string
	Link        string
	Title       string
	Description string
	Published   string
	Content     string
}

// ParseFeed parses an RSS or Atom feed body. Entries are returned as found,
// including ones without a link; the normalizer decides what to skip.
func ParseFeed(ctx context.Context, body string) (*ParsedFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	parser := gofeed.NewParser()

	parsed, err := parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	result := &ParsedFeed{
		Title:       strings.TrimSpace(parsed.Title),
		Description: strings.TrimSpace(parsed.Description),
		Entries:     make([]Entry, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}

		result.Entries = append(result.Entries, Entry{
			ID:          strings.TrimSpace(item.GUID),
			Link:        extractLink(item),
			Title:       strings.TrimSpace(item.Title),
			Description: item.Description,
			Published:   publishedString(item),
			Content:     item.Content,
		})
	}

	return result, nil
}

// extractLink returns the best available URL from a feed entry.
// It prefers the explicit Link field, falling back to the GUID if it
// looks like an HTTP URL.
func extractLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}

	if strings.HasPrefix(entry.GUID, httpPrefix) {
		return entry.GUID
	}

	return ""
}

func publishedString(entry *gofeed.Item) string {
	if entry.Published != "" {
		return entry.Published
	}

	return entry.Updated
}
