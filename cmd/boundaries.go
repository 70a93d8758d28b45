package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/geocode"
	"github.com/streetcomplete/sc-statistics-service/internal/store"
)

var (
	boundariesFile      string
	boundariesFormat    string
	boundariesCodeField string
)

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Load country and subdivision boundary polygons",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := boundariesFile
		if path == "" {
			path = cfg.Boundaries.Path
		}
		format := boundariesFormat
		if format == "" {
			format = cfg.Boundaries.Format
		}
		codeField := boundariesCodeField
		if codeField == "" {
			codeField = cfg.Boundaries.CodeField
		}

		pool, err := store.NewPool(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := store.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		start := time.Now()
		var loaded int
		switch format {
		case "geojson":
			loaded, err = geocode.LoadGeoJSON(ctx, pool, path)
		case "shapefile":
			loaded, err = geocode.LoadShapefile(ctx, pool, path, codeField)
		default:
			return eris.Errorf("unknown boundaries format %q", format)
		}
		if err != nil {
			return err
		}

		zap.L().Info("boundaries loaded",
			zap.String("file", path),
			zap.Int("count", loaded),
			zap.Duration("took", time.Since(start)),
		)
		return nil
	},
}

func init() {
	boundariesCmd.Flags().StringVar(&boundariesFile, "file", "", "boundaries file (default from config)")
	boundariesCmd.Flags().StringVar(&boundariesFormat, "format", "", "geojson or shapefile (default from config)")
	boundariesCmd.Flags().StringVar(&boundariesCodeField, "code-field", "", "shapefile attribute holding the ISO code (default from config)")
	rootCmd.AddCommand(boundariesCmd)
}
