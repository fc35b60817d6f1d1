package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/skehlet/dailymail/infrastructure/logger"
	"github.com/skehlet/dailymail/internal/bootstrap"
	"github.com/skehlet/dailymail/internal/database"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{database.MigrateUp, database.MigrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(_ context.Context, deps *bootstrap.Deps) error {
				if err := database.Migrate(deps.Config.Database.URL(), args[0]); err != nil {
					return err
				}
				deps.Logger.Info("migrations applied", logger.String("direction", args[0]))
				return nil
			})
		},
	}
}
