package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Resume stalled changeset history walks",
	Long:  "Picks up users whose walk was cut off by a request-time budget and finishes their passes, oldest first, within the sweep budget. Meant to run from cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		olderThan := time.Now().Add(-time.Duration(cfg.Walker.SweepStaleSecs) * time.Second)
		budget := time.Duration(cfg.Walker.MaxSweepSecs) * time.Second

		start := time.Now()
		if err := env.Walker.AnalyzeStale(ctx, olderThan, budget); err != nil {
			return err
		}
		zap.L().Info("sweep finished", zap.Duration("took", time.Since(start)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
