// Package geocode resolves geographic points to ISO country and subdivision
// codes via point-in-polygon containment over the boundaries table.
package geocode

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
)

// Resolver answers which country/subdivision boundaries contain a point.
// The boundary set is read-only reference data; a Resolver may be shared
// freely across concurrent walks.
type Resolver struct {
	pool db.Pool

	// boundariesPath, if set, is bulk-loaded into the boundaries table on
	// first use when the table is empty.
	boundariesPath string
	loadOnce       sync.Once
	loadErr        error
}

// NewResolver creates a Resolver. boundariesPath may be empty, in which case
// the boundaries table is expected to be populated already (via the
// boundaries command).
func NewResolver(pool db.Pool, boundariesPath string) *Resolver {
	return &Resolver{pool: pool, boundariesPath: boundariesPath}
}

// Resolve returns the ISO codes of all boundaries containing the point,
// most specific first. Subdivision codes are built as COUNTRY-SUBDIVISION and
// are therefore strictly longer than the bare country code, so descending
// code length ranks them deterministically without a type flag. Supranational
// pseudo-codes are excluded. An empty result is not an error.
func (r *Resolver) Resolve(ctx context.Context, lon, lat float64) ([]string, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT code FROM boundaries
		WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))`,
		lon, lat,
	)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: query containing boundaries")
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, eris.Wrap(err, "geocode: scan boundary code")
		}
		// skip non-countries
		if code == "EU" || code == "FX" {
			continue
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geocode: iterate boundary codes")
	}

	sort.SliceStable(codes, func(i, j int) bool {
		return len(codes[i]) > len(codes[j])
	})
	return codes, nil
}

// ensureLoaded populates the boundaries table from the configured file if it
// is still empty. One-time administrative work, not part of the steady-state
// request path.
func (r *Resolver) ensureLoaded(ctx context.Context) error {
	if r.boundariesPath == "" {
		return nil
	}
	r.loadOnce.Do(func() {
		var count int
		if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM boundaries`).Scan(&count); err != nil {
			r.loadErr = eris.Wrap(err, "geocode: count boundaries")
			return
		}
		if count > 0 {
			return
		}

		loaded, err := LoadGeoJSON(ctx, r.pool, r.boundariesPath)
		if err != nil {
			r.loadErr = err
			return
		}
		zap.L().Info("geocode: boundaries loaded",
			zap.String("path", r.boundariesPath),
			zap.Int("count", loaded),
		)
	})
	return r.loadErr
}
