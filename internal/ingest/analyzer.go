package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/model"
	"github.com/streetcomplete/sc-statistics-service/internal/osm"
)

// ElementSource fetches the modified element ids of a changeset.
type ElementSource interface {
	ModifiedElementIDs(ctx context.Context, changesetID int64) (*model.ElementIDs, error)
}

// CountryResolver resolves a point to ISO codes, most specific first.
type CountryResolver interface {
	Resolve(ctx context.Context, lon, lat float64) ([]string, error)
}

// Analyzer enriches a changeset with derived data: the revert-aware solved
// quest count and the ISO 3166-1 alpha-2 / ISO 3166-2 code of the changeset
// center.
type Analyzer struct {
	elements ElementSource
	geocoder CountryResolver
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(elements ElementSource, geocoder CountryResolver) *Analyzer {
	return &Analyzer{elements: elements, geocoder: geocoder}
}

// Enrich returns a copy of the changeset with SolvedQuestCount and
// CountryCode filled in.
//
// The changes_count reported by the API is not always the actual solved
// quest count: reverts count as additional changes, and splitting a way
// creates new elements. So only modified elements are counted, revert-aware
// (see SolvedCount). If the element data is unobtainable upstream the solved
// count is left nil; the walker then falls back to the previously stored or
// the raw count. A missing bounding box or a point outside every boundary
// leaves the country code absent; neither is an error.
func (a *Analyzer) Enrich(ctx context.Context, cs model.Changeset) (model.Changeset, error) {
	elements, err := a.elements.ModifiedElementIDs(ctx, cs.ID)
	switch {
	case eris.Is(err, osm.ErrNotFound):
		cs.SolvedQuestCount = nil
		zap.L().Debug("ingest: element data unavailable",
			zap.Int64("changeset_id", cs.ID),
		)
	case err != nil:
		return cs, err
	default:
		solved := solvedTotal(*elements)
		cs.SolvedQuestCount = &solved
	}

	cs.CountryCode = nil
	if cs.BBox != nil {
		lon, lat := cs.BBox.Center()
		codes, err := a.geocoder.Resolve(ctx, lon, lat)
		if err != nil {
			return cs, err
		}
		if len(codes) > 0 {
			cs.CountryCode = &codes[0]
		}
	}

	return cs, nil
}
