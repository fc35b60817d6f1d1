// Package cmd implements the dailymail command-line interface. Every
// pipeline stage is a subcommand that runs once and exits, except
// link-reader and scheduler which run until interrupted.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	infraconfig "github.com/skehlet/dailymail/infrastructure/config"
	"github.com/skehlet/dailymail/internal/bootstrap"
)

const defaultConfigFile = "config.yml"

// configPath holds the --config flag.
var configPath string

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dailymail",
		Short:         "Feed, link and email digest pipeline",
		Long:          `dailymail reads RSS feeds, links and forwarded email, summarizes them and mails one digest a day.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(
		&configPath,
		"config",
		infraconfig.GetConfigPath(defaultConfigFile),
		"config file (CONFIG_PATH)",
	)

	root.AddCommand(
		rssReaderCommand(),
		scraperCommand(),
		summarizerCommand(),
		digestCommand(),
		sweepCommand(),
		linkReaderCommand(),
		emailReaderCommand(),
		schedulerCommand(),
		queueCommand(),
		feedsCommand(),
		migrateCommand(),
	)

	return root
}

// withDeps loads configuration for cmd, runs fn and releases every client
// fn opened.
func withDeps(cmd *cobra.Command, fn func(ctx context.Context, deps *bootstrap.Deps) error) error {
	name := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")

	deps, err := bootstrap.New(configPath, name)
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(cmd.Context(), deps)
}
