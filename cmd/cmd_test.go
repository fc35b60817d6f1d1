package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skehlet/dailymail/internal/domain"
)

func TestRootCommand_Tree(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()
	for _, path := range [][]string{
		{"rss-reader"},
		{"scraper"},
		{"summarizer"},
		{"digest"},
		{"digest", "smoke"},
		{"sweep"},
		{"link-reader"},
		{"email-reader"},
		{"scheduler"},
		{"queue", "redrive"},
		{"queue", "dump"},
		{"queue", "stats"},
		{"feeds", "list"},
		{"migrate"},
	} {
		found, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestMigrateCommand_RejectsUnknownDirection(t *testing.T) {
	t.Parallel()

	cmd := migrateCommand()
	require.Error(t, cmd.Args(cmd, []string{"sideways"}))
	require.Error(t, cmd.Args(cmd, nil))
	require.NoError(t, cmd.Args(cmd, []string{"up"}))
}

func TestRenderFeedTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderFeedTable(&buf,
		[]domain.FeedSource{
			{URL: "https://a.example/rss", Context: "golang"},
			{URL: "https://b.example/rss"},
		},
		[]domain.FetchCache{
			{SourceURL: "https://a.example/rss", ETag: `"v1"`, UpdatedAt: time.Date(2024, 4, 22, 21, 9, 0, 0, time.UTC)},
		},
	)

	out := buf.String()
	assert.Contains(t, out, "https://a.example/rss")
	assert.Contains(t, out, `"v1"`)
	assert.Contains(t, out, "2024-04-22 21:09")
	assert.Contains(t, out, "never")
}

func TestRenderGroupTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderGroupTable(&buf, &domain.Digest{Groups: []domain.DigestGroup{
		{FeedTitle: "Email", Records: []domain.Record{{Title: "a", Published: "2024-04-22 14:09 PDT"}}},
		{
			FeedTitle: "Google Alert - go",
			Synthesis: &domain.Synthesis{Summary: "s", Fallback: true},
			Records:   []domain.Record{{Title: "b"}, {Title: "c"}},
		},
	}})

	out := buf.String()
	assert.Contains(t, out, "Google Alert - go")
	assert.Contains(t, out, "fallback")
	assert.Contains(t, out, "2024-04-22 14:09 PDT")
}

func TestDigestSmoke_SkipLLM(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yml")
	fixture := filepath.Join(dir, "messages.json")
	out := filepath.Join(dir, "preview.html")

	require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  level: error\n"), 0o600))
	require.NoError(t, os.WriteFile(fixture, []byte(`[
		{"MessageId": "1-0", "Body": "{\"feed_title\":\"Email\",\"title\":\"Hello\",\"url\":\"https://example.com/a\",\"summary\":\"sum\"}"},
		{"MessageId": "2-0", "Body": "not json"}
	]`), 0o600))

	root := NewRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"--config", cfg, "digest", "smoke", "--fixture", fixture, "--out", out, "--skip-llm"})
	require.NoError(t, root.Execute())

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(html), "https://example.com/a")
	assert.Contains(t, stdout.String(), "Subject: Daily Digest")
	assert.Contains(t, stdout.String(), "Email")
}
