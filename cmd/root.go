package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sc-statistics",
	Short: "StreetComplete user statistics service",
	Long:  "Walks users' OSM changeset histories, counts solved quests revert-aware, geocodes changeset centers and serves statistics and leaderboard ranks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
