package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ranksCmd = &cobra.Command{
	Use:   "ranks",
	Short: "Rebuild the leaderboard rank tables",
	Long:  "Recomputes dense ranks over solved quest counts, per country and globally, for all time and for the current and last week. Meant to run from cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		if err := env.Ranks.Generate(ctx); err != nil {
			return err
		}
		zap.L().Info("ranks rebuilt", zap.Duration("took", time.Since(start)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ranksCmd)
}
