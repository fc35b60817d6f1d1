package feed_test

import (
	"context"
	"testing"

	"github.com/skehlet/dailymail/internal/feed"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example News</title>
    <description>News from example.com</description>
    <item>
      <title>Article One</title>
      <link>https://example.com/one</link>
      <guid>guid-one</guid>
      <description>First article</description>
      <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Article Two</title>
      <guid isPermaLink="true">https://example.com/two</guid>
    </item>
    <item>
      <title>No Link</title>
      <guid>not-a-url</guid>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Google Alert - golang</title>
  <entry>
    <id>tag:google.com,2013:googlealerts/feed:123</id>
    <title type="html">Go 1.22 released</title>
    <link href="https://www.google.com/url?rct=j&amp;sa=t&amp;url=https://go.dev/blog/go1.22&amp;ct=ga"/>
    <updated>2024-02-06T18:00:00Z</updated>
    <content type="html">Go 1.22 is out</content>
  </entry>
</feed>`

func TestParseFeed_RSS(t *testing.T) {
	t.Parallel()

	parsed, err := feed.ParseFeed(context.Background(), rssFixture)
	requireNoError(t, err)

	assertEqual(t, "Example News", parsed.Title)
	assertEqual(t, "News from example.com", parsed.Description)
	requireLen(t, parsed.Entries, 3)

	first := parsed.Entries[0]
	assertEqual(t, "guid-one", first.ID)
	assertEqual(t, "https://example.com/one", first.Link)
	assertEqual(t, "First article", first.Description)
	assertEqual(t, "Tue, 02 Jan 2024 10:00:00 GMT", first.Published)

	assertEqual(t, "https://example.com/two", parsed.Entries[1].Link)
	assertEqual(t, "", parsed.Entries[2].Link)
}

func TestParseFeed_AtomUsesUpdatedWhenNoPublished(t *testing.T) {
	t.Parallel()

	parsed, err := feed.ParseFeed(context.Background(), atomFixture)
	requireNoError(t, err)
	requireLen(t, parsed.Entries, 1)

	entry := parsed.Entries[0]
	assertEqual(t, "tag:google.com,2013:googlealerts/feed:123", entry.ID)
	assertEqual(t, "2024-02-06T18:00:00Z", entry.Published)
	assertEqual(t, "Go 1.22 is out", entry.Content)
}

func TestParseFeed_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := feed.ParseFeed(context.Background(), "this is not xml"); err == nil {
		t.Error("expected error for invalid feed")
	}
}

func TestParseFeed_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := feed.ParseFeed(ctx, rssFixture); err == nil {
		t.Error("expected error for cancelled context")
	}
}
