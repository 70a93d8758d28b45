package geocode

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
)

// LoadGeoJSON loads country/subdivision boundary polygons from a GeoJSON
// FeatureCollection into the boundaries table and returns the number of
// features loaded. The ISO code is taken from the feature's "id" property.
// Loading is idempotent: re-loading a code overwrites its geometry.
func LoadGeoJSON(ctx context.Context, pool db.Pool, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "geocode: read boundaries file %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return 0, eris.Wrapf(err, "geocode: parse boundaries file %s", path)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "geocode: begin boundary load tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var loaded, skipped int
	for _, feature := range fc.Features {
		code := featureCode(feature)
		if code == "" || feature.Geometry == nil {
			skipped++
			continue
		}

		encoded, err := wkb.Marshal(feature.Geometry, wkb.NDR)
		if err != nil {
			skipped++
			continue
		}

		if err := upsertBoundary(ctx, tx, code, encoded); err != nil {
			return 0, err
		}
		loaded++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "geocode: commit boundary load tx")
	}

	if skipped > 0 {
		zap.L().Debug("geocode: skipped boundary features", zap.Int("skipped", skipped))
	}
	return loaded, nil
}

func featureCode(feature *geojson.Feature) string {
	if id, ok := feature.Properties["id"].(string); ok {
		return id
	}
	return feature.ID
}

func upsertBoundary(ctx context.Context, pool db.Pool, code string, wkbGeom []byte) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO boundaries (code, geom)
		VALUES ($1, ST_SetSRID(ST_GeomFromWKB($2), 4326))
		ON CONFLICT (code) DO UPDATE SET geom = EXCLUDED.geom`,
		code, wkbGeom,
	)
	if err != nil {
		return eris.Wrapf(err, "geocode: upsert boundary %s", code)
	}
	return nil
}

// geomFromParts builds a MultiPolygon from rings, one single-ring polygon per
// part. Parts are not reassembled into shells and holes; ST_Contains over the
// resulting geometry is what the resolver queries need.
func geomFromParts(rings [][]geom.Coord) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, ring := range rings {
		if len(ring) < 4 {
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if _, err := poly.SetCoords([][]geom.Coord{ring}); err != nil {
			return nil, eris.Wrap(err, "geocode: build polygon ring")
		}
		if err := mp.Push(poly); err != nil {
			return nil, eris.Wrap(err, "geocode: push polygon")
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.New("geocode: no usable rings")
	}
	return mp, nil
}
