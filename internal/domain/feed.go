// Package domain contains the records that flow between dailymail stages.
package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrEmptyFeedURL is returned when a configured feed has no URL.
var ErrEmptyFeedURL = errors.New("feed source url is empty")

// FeedSource is a configured feed. Context is an optional free-text tag
// describing why the feed is tracked, typically a topic for alert feeds.
type FeedSource struct {
	URL     string `json:"url"               yaml:"url"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
}

// UnmarshalJSON accepts either a bare URL string or an {url, context} object.
func (s *FeedSource) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		return s.set(bare, "")
	}

	var obj struct {
		URL     string `json:"url"`
		Context string `json:"context"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	return s.set(obj.URL, obj.Context)
}

// UnmarshalYAML accepts the same two shapes as UnmarshalJSON.
func (s *FeedSource) UnmarshalYAML(unmarshal func(any) error) error {
	var bare string
	if err := unmarshal(&bare); err == nil {
		return s.set(bare, "")
	}

	var obj struct {
		URL     string `yaml:"url"`
		Context string `yaml:"context"`
	}
	if err := unmarshal(&obj); err != nil {
		return err
	}
	return s.set(obj.URL, obj.Context)
}

func (s *FeedSource) set(url, context string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrEmptyFeedURL
	}
	s.URL = url
	s.Context = strings.TrimSpace(context)
	return nil
}

// FetchCache holds the HTTP validators last returned for a feed. Empty
// strings mean the server sent no validator; a missing row means the feed
// was never fetched successfully.
type FetchCache struct {
	SourceURL    string    `db:"source_url"`
	ETag         string    `db:"etag"`
	LastModified string    `db:"last_modified"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// ProcessedEntry records that an entry of a feed was handed downstream.
type ProcessedEntry struct {
	SourceURL string    `db:"source_url"`
	EntryID   string    `db:"entry_id"`
	SeenAt    time.Time `db:"seen_at"`
}
