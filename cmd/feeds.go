package cmd

import (
	"context"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/internal/bootstrap"
	"github.com/skehlet/dailymail/internal/domain"
)

func feedsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Inspect configured feeds",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured feeds with their stored validators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				cache, err := deps.FetchCache(ctx)
				if err != nil {
					return err
				}
				rows, err := cache.List(ctx)
				if err != nil {
					return err
				}
				renderFeedTable(cmd.OutOrStdout(), deps.Config.Feeds.Sources, rows)
				return nil
			})
		},
	})
	return cmd
}

func renderFeedTable(w io.Writer, sources []domain.FeedSource, caches []domain.FetchCache) {
	byURL := make(map[string]domain.FetchCache, len(caches))
	for _, c := range caches {
		byURL[c.SourceURL] = c
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"URL", "Context", "ETag", "Last-Modified", "Fetched"})

	for _, src := range sources {
		row := table.Row{src.URL, src.Context, "", "", "never"}
		if c, ok := byURL[src.URL]; ok {
			row[2] = c.ETag
			row[3] = c.LastModified
			row[4] = c.UpdatedAt.Format("2006-01-02 15:04")
		}
		t.AppendRow(row)
	}

	t.Render()
}
