// Package store persists changesets, walk state, boundaries and ranks in
// PostgreSQL (with PostGIS for the boundary geometries).
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPool creates a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, connString string, poolCfg *PoolConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return pool, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS changesets (
	changeset_id       BIGINT PRIMARY KEY,
	user_id            BIGINT NOT NULL,
	quest_type         TEXT NOT NULL,
	solved_quest_count INT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	closed_at          TIMESTAMPTZ,
	country_code       VARCHAR(6),
	open               BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_changesets_user ON changesets (user_id);
CREATE INDEX IF NOT EXISTS idx_changesets_user_open ON changesets (user_id) WHERE open;

CREATE TABLE IF NOT EXISTS changesets_walker_state (
	user_id                   BIGINT PRIMARY KEY,
	finished_analyzing_before TIMESTAMPTZ NOT NULL DEFAULT '2017-02-20T00:00:00Z',
	newest_closed             TIMESTAMPTZ,
	oldest_created            TIMESTAMPTZ,
	last_update               TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_walker_state_stalled
	ON changesets_walker_state (last_update) WHERE newest_closed IS NOT NULL;

CREATE TABLE IF NOT EXISTS boundaries (
	code VARCHAR(6) PRIMARY KEY,
	geom geometry(Geometry, 4326) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_boundaries_geom ON boundaries USING GIST (geom);

CREATE TABLE IF NOT EXISTS user_ranks (
	user_id            BIGINT NOT NULL,
	country_code       VARCHAR(6) NOT NULL DEFAULT '',
	rank               INT NOT NULL,
	solved_quest_count BIGINT NOT NULL,
	PRIMARY KEY (user_id, country_code)
);
CREATE TABLE IF NOT EXISTS user_ranks_current_week (LIKE user_ranks INCLUDING ALL);
CREATE TABLE IF NOT EXISTS user_ranks_last_week (LIKE user_ranks INCLUDING ALL);
`

// Migrate creates all tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool db.Pool) error {
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}
