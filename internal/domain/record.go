package domain

import "time"

// RecordType tags where a record came from. It is informational only.
type RecordType string

const (
	RecordTypeRSSEntry RecordType = "rss_entry"
	RecordTypeEmail    RecordType = "email"
	RecordTypeURL      RecordType = "url"
)

// Record is the canonical article-or-email unit passed between stages. The
// ingesting stage fills the feed and entry fields; the scraper adds Content;
// the summarizer adds Summary through RelevanceExplanation; the digest
// aggregator derives Domain and rewrites Published for display.
type Record struct {
	Type            RecordType `json:"type,omitempty"`
	FeedTitle       string     `json:"feed_title,omitempty"`
	FeedDescription string     `json:"feed_description,omitempty"`
	FeedContext     string     `json:"feed_context,omitempty"`
	Title           string     `json:"title,omitempty"`
	URL             string     `json:"url,omitempty"`
	Description     string     `json:"description,omitempty"`
	Published       string     `json:"published,omitempty"`

	Content              string `json:"content,omitempty"`
	Summary              string `json:"summary,omitempty"`
	NotableAspects       string `json:"notable_aspects,omitempty"`
	Relevance            string `json:"relevance,omitempty"`
	RelevanceExplanation string `json:"relevance_explanation,omitempty"`
	Domain               string `json:"domain,omitempty"`

	// Immediate is set by the link reader for hand-submitted links.
	Immediate bool `json:"immediate,omitempty"`
	// Paywalled is set by the scraper when the page hides its body.
	Paywalled bool `json:"paywalled,omitempty"`
}

// StagedNotice is the summarizer queue message pointing at a record in the
// staging bucket.
type StagedNotice struct {
	StagingKey string `json:"staging_key"`
}

// Synthesis is the collective blurb shown above a multi-record group.
type Synthesis struct {
	Summary        string `json:"summary"`
	NotableAspects string `json:"notable_aspects"`
	// Fallback is true when the synthesizer failed and the text was generated
	// locally.
	Fallback bool `json:"fallback,omitempty"`
}

// DigestGroup is every record sharing one FeedTitle, newest first.
type DigestGroup struct {
	FeedTitle string
	Synthesis *Synthesis
	Records   []Record
}

// Digest is one rendered run.
type Digest struct {
	RunID       string
	Opening     string
	Groups      []DigestGroup
	GeneratedAt time.Time
}

// RecordCount returns the number of records across all groups.
func (d *Digest) RecordCount() int {
	n := 0
	for i := range d.Groups {
		n += len(d.Groups[i].Records)
	}
	return n
}
