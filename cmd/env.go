package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/streetcomplete/sc-statistics-service/internal/geocode"
	"github.com/streetcomplete/sc-statistics-service/internal/ingest"
	"github.com/streetcomplete/sc-statistics-service/internal/osm"
	"github.com/streetcomplete/sc-statistics-service/internal/ranks"
	"github.com/streetcomplete/sc-statistics-service/internal/store"
)

// serviceEnv holds the initialized pool, stores and the walker needed by the
// commands.
type serviceEnv struct {
	Pool       *pgxpool.Pool
	Changesets *store.Changesets
	WalkStates *store.WalkStates
	Ranks      *ranks.Store
	Client     *osm.Client
	Resolver   *geocode.Resolver
	Walker     *ingest.Walker
}

// Close releases resources held by the environment.
func (e *serviceEnv) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initService sets up the database pool, runs migrations and builds the OSM
// client, geocoder and walker. Callers should defer env.Close().
func initService(ctx context.Context) (*serviceEnv, error) {
	pool, err := store.NewPool(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := osm.NewClient(osm.Options{
		BaseURL:        cfg.OSM.BaseURL,
		AuthToken:      cfg.OSM.AuthToken,
		UserAgent:      cfg.OSM.UserAgent,
		Timeout:        time.Duration(cfg.OSM.TimeoutSecs) * time.Second,
		RequestsPerSec: cfg.OSM.RequestsPerSec,
	})

	changesets := store.NewChangesets(pool)
	walkStates := store.NewWalkStates(pool)
	resolver := geocode.NewResolver(pool, cfg.Boundaries.Path)
	analyzer := ingest.NewAnalyzer(client, resolver)

	return &serviceEnv{
		Pool:       pool,
		Changesets: changesets,
		WalkStates: walkStates,
		Ranks:      ranks.New(pool),
		Client:     client,
		Resolver:   resolver,
		Walker:     ingest.NewWalker(client, changesets, walkStates, analyzer),
	}, nil
}
