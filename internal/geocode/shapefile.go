package geocode

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
)

// LoadShapefile loads boundary polygons from a shapefile into the boundaries
// table and returns the number of records loaded. codeField names the
// attribute carrying the ISO code.
func LoadShapefile(ctx context.Context, pool db.Pool, path, codeField string) (int, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "geocode: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, codeField)
	if codeIdx < 0 {
		return 0, eris.Errorf("geocode: shapefile field %q not found", codeField)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "geocode: begin shapefile load tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var loaded, skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		code := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		if code == "" {
			skipped++
			continue
		}

		polygon, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp, err := polygonToGeom(polygon)
		if err != nil {
			skipped++
			continue
		}

		encoded, err := wkb.Marshal(mp, wkb.NDR)
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
		return 0, eris.Wrap(err, "geocode: commit shapefile load tx")
	}

	if skipped > 0 {
		zap.L().Debug("geocode: skipped shapefile records", zap.Int("skipped", skipped))
	}
	return loaded, nil
}

// polygonToGeom converts a shapefile polygon to a MultiPolygon, one part per
// polygon.
func polygonToGeom(p *shp.Polygon) (*geom.MultiPolygon, error) {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil, eris.New("geocode: empty shapefile polygon")
	}

	rings := make([][]geom.Coord, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}
		rings = append(rings, ring)
	}

	return geomFromParts(rings)
}

// fieldIndex returns the index of a named field in the shapefile, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
