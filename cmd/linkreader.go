package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/infrastructure/profiling"
	"github.com/skehlet/dailymail/internal/bootstrap"
)

func linkReaderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link-reader",
		Short: "Serve the link submission endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *bootstrap.Deps) error {
				profiling.StartPprofServer(ctx, deps.Config.Service.PprofAddress, deps.Logger)
				srv, err := deps.LinkReaderServer(ctx)
				if err != nil {
					return err
				}
				return srv.Run(ctx)
			})
		},
	}
}
