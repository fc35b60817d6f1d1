package digest_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skehlet/dailymail/internal/digest"
	"github.com/skehlet/dailymail/internal/domain"
)

func sampleDigest() *domain.Digest {
	return &domain.Digest{
		Opening:     "Big day for <tests>.",
		GeneratedAt: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
		Groups: []domain.DigestGroup{
			{
				FeedTitle: "Alpha",
				Synthesis: &domain.Synthesis{Summary: "Group summary.", NotableAspects: "Trend."},
				Records: []domain.Record{
					{Title: "First", URL: "https://a.example/1", Domain: "a.example", Published: "2024-06-01 06:00 PDT", Summary: "S1"},
					{Title: "Second", URL: "https://a.example/2", Published: "2024-05-31 06:00 PDT", Summary: "S2"},
				},
			},
			{
				FeedTitle: "Beta",
				Records: []domain.Record{
					{Title: "Third", Summary: "S3", Relevance: "RELEVANT", RelevanceExplanation: "on topic"},
				},
			},
		},
	}
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	r, err := digest.NewRenderer("Daily Digest", la)
	require.NoError(t, err)

	out, err := r.Render(sampleDigest())
	require.NoError(t, err)

	assert.Equal(t, "Daily Digest - Saturday, June 1, 2024", out.Subject)

	assert.Contains(t, out.HTML, "Big day for &lt;tests&gt;.")
	assert.Contains(t, out.HTML, `<a href="https://a.example/1"`)
	assert.Contains(t, out.HTML, "Group summary.")
	assert.Less(t, strings.Index(out.HTML, "Alpha"), strings.Index(out.HTML, "Beta"))
	assert.Less(t, strings.Index(out.HTML, "First"), strings.Index(out.HTML, "Second"))

	assert.Contains(t, out.Text, "== Alpha ==")
	assert.Contains(t, out.Text, "Relevance: RELEVANT - on topic")
	assert.Contains(t, out.Text, "3 articles")
}
