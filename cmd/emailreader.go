package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/bootstrap"
)

func emailReaderCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "email-reader",
		Short: "Stage one forwarded email for summarizing",
		Long:  `Reads one RFC 5322 message from --file, or from stdin when --file is "-", so it can be used as a mail delivery pipe.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				var in io.Reader = cmd.InOrStdin()
				if file != "-" {
					f, err := os.Open(file)
					if err != nil {
						return fmt.Errorf("open message: %w", err)
					}
					defer f.Close()
					in = f
				}

				reader, err := deps.EmailReader(ctx)
				if err != nil {
					return err
				}

				result, err := reader.Read(ctx, in)
				if err != nil {
					return err
				}
				if result.Confirmation {
					deps.Logger.Info("forwarding confirmation handled")
					return nil
				}

				deps.Logger.Debug("email reader finished", logger.String("staging_key", result.StagingKey))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "message file, - for stdin")

	return cmd
}
