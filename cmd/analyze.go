package main

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var analyzeBudgetSecs int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <user-id>...",
	Short: "Walk the changeset histories of the given users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		userIDs := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return eris.Wrapf(err, "invalid user id %q", arg)
			}
			userIDs = append(userIDs, id)
		}

		env, err := initService(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		budget := time.Duration(analyzeBudgetSecs) * time.Second

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Walker.Concurrency)
		for _, userID := range userIDs {
			g.Go(func() error {
				start := time.Now()
				if err := env.Walker.AnalyzeUser(gctx, userID, budget); err != nil {
					return eris.Wrapf(err, "analyze user %d", userID)
				}
				zap.L().Info("user analyzed",
					zap.Int64("user_id", userID),
					zap.Duration("took", time.Since(start)),
				)
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeBudgetSecs, "budget-secs", 0, "wall-clock budget per user (0 = unlimited)")
	rootCmd.AddCommand(analyzeCmd)
}
