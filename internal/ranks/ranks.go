// Package ranks computes and serves the leaderboard rank tables.
package ranks

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
)

// Store computes dense ranks over the solved quest counts, per country and
// globally, for all time and for the current and last calendar week.
type Store struct {
	pool db.Pool
}

// New creates a rank Store.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// rankTables maps each target table to the created_at filter applied to the
// changesets feeding it. Weeks start on Monday, as date_trunc does.
var rankTables = []struct {
	table  string
	filter string
}{
	{"user_ranks", ""},
	{"user_ranks_current_week",
		"AND created_at >= date_trunc('week', now())"},
	{"user_ranks_last_week",
		"AND created_at >= date_trunc('week', now()) - interval '7 days' AND created_at < date_trunc('week', now())"},
}

// Generate rebuilds all three rank tables from the changesets table. Each
// table gets one row per user and country (subdivisions collapsed into their
// country) plus a global row with an empty country code. Ranks are dense:
// users with equal counts share a rank and no rank is skipped.
func (s *Store) Generate(ctx context.Context) error {
	for _, t := range rankTables {
		if err := s.generateTable(ctx, t.table, t.filter); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) generateTable(ctx context.Context, table, filter string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "ranks: begin tx for %s", table)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return eris.Wrapf(err, "ranks: clear %s", table)
	}

	// table and filter come from the fixed rankTables list, never from input.
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, country_code, rank, solved_quest_count)
		WITH per_country AS (
			SELECT user_id, split_part(country_code, '-', 1) AS country_code,
			       SUM(solved_quest_count) AS solved
			FROM changesets
			WHERE country_code IS NOT NULL %s
			GROUP BY user_id, split_part(country_code, '-', 1)
		), global AS (
			SELECT user_id, '' AS country_code, SUM(solved_quest_count) AS solved
			FROM changesets
			WHERE TRUE %s
			GROUP BY user_id
		), combined AS (
			SELECT * FROM per_country UNION ALL SELECT * FROM global
		)
		SELECT user_id, country_code,
		       DENSE_RANK() OVER (PARTITION BY country_code ORDER BY solved DESC),
		       solved
		FROM combined`, table, filter, filter)

	tag, err := tx.Exec(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "ranks: fill %s", table)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "ranks: commit %s", table)
	}

	zap.L().Info("ranks: table rebuilt",
		zap.String("table", table),
		zap.Int64("rows", tag.RowsAffected()),
	)
	return nil
}

// UserRanks holds a user's all-time ranks: the global rank (0 if the user is
// unranked) and the rank within each country the user solved quests in.
type UserRanks struct {
	Rank         int            `json:"rank"`
	CountryRanks map[string]int `json:"countryRanks"`
}

// ForUser returns the user's all-time ranks.
func (s *Store) ForUser(ctx context.Context, userID int64) (*UserRanks, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT country_code, rank FROM user_ranks WHERE user_id = $1`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "ranks: load user ranks")
	}
	defer rows.Close()

	result := &UserRanks{CountryRanks: make(map[string]int)}
	for rows.Next() {
		var country string
		var rank int
		if err := rows.Scan(&country, &rank); err != nil {
			return nil, eris.Wrap(err, "ranks: scan user rank")
		}
		if country == "" {
			result.Rank = rank
		} else {
			result.CountryRanks[country] = rank
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "ranks: iterate user ranks")
	}
	return result, nil
}
