package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/purge"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove all data of deleted OSM users",
	Long:  "Downloads the published list of deleted OSM user ids and removes every changeset, walk state and rank row belonging to them. Meant to run from cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		deleted, err := purge.New(env.Pool, cfg.Purge.DeletedUsersURL).Run(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("purge finished", zap.Int64("changesets_deleted", deleted))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
