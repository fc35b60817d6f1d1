package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/bootstrap"
	"github.com/skehlet/dailymail/internal/digest"
	"github.com/skehlet/dailymail/internal/domain"
)

func digestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build and mail the digest from the digest queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, runDigest)
		},
	}
	cmd.AddCommand(digestSmokeCommand())
	return cmd
}

func runDigest(ctx context.Context, deps *bootstrap.Deps) error {
	dispatcher, err := deps.Dispatcher(ctx)
	if err != nil {
		return err
	}
	return dispatcher.Run(ctx)
}

type smokeOptions struct {
	fixture string
	out     string
	skipLLM bool
}

func digestSmokeCommand() *cobra.Command {
	var opts smokeOptions

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Render a digest from a fixture without sending or deleting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				if opts.skipLLM {
					deps.Config.Digest.SkipSynthesis = true
					deps.Config.Digest.SkipOpening = true
				}
				return runSmoke(ctx, deps, opts, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&opts.fixture, "fixture", "example-messages.json", "queued messages as written by queue dump")
	cmd.Flags().StringVar(&opts.out, "out", "digest-preview.html", "file the HTML body is written to")
	cmd.Flags().BoolVar(&opts.skipLLM, "skip-llm", false, "use fallback synthesis and opening text")

	return cmd
}

func runSmoke(ctx context.Context, deps *bootstrap.Deps, opts smokeOptions, w io.Writer) error {
	f, err := os.Open(opts.fixture)
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	msgs, err := digest.ReadFixture(f)
	if err != nil {
		return err
	}

	records, _ := digest.DecodeMessages(msgs, deps.Logger)
	if len(records) == 0 {
		return fmt.Errorf("fixture %s has no decodable records", opts.fixture)
	}

	builder, err := deps.DigestBuilder()
	if err != nil {
		return err
	}

	d, rendered, err := builder.Preview(ctx, records)
	if err != nil {
		return err
	}

	if err = os.WriteFile(opts.out, []byte(rendered.HTML), 0o600); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}

	fmt.Fprintf(w, "Subject: %s\n\n", rendered.Subject)
	renderGroupTable(w, d)

	deps.Logger.Info("digest preview written",
		logger.String("file", opts.out),
		logger.Int("records", d.RecordCount()),
		logger.Int("groups", len(d.Groups)),
	)
	return nil
}

func renderGroupTable(w io.Writer, d *domain.Digest) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Feed", "Records", "Synthesis", "Newest"})

	for _, g := range d.Groups {
		synthesis := "-"
		if g.Synthesis != nil {
			synthesis = "llm"
			if g.Synthesis.Fallback {
				synthesis = "fallback"
			}
		}

		newest := ""
		if len(g.Records) > 0 {
			newest = g.Records[0].Published
		}

		t.AppendRow(table.Row{g.FeedTitle, len(g.Records), synthesis, newest})
	}

	t.AppendFooter(table.Row{"Total", d.RecordCount(), "", ""})
	t.Render()
}
