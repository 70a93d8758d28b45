package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
	"github.com/streetcomplete/sc-statistics-service/internal/model"
)

var changesetUpsert = db.UpsertConfig{
	Table: "changesets",
	Columns: []string{
		"changeset_id", "user_id", "quest_type", "solved_quest_count",
		"created_at", "closed_at", "country_code", "open",
	},
	ConflictKeys: []string{"changeset_id"},
	UpdateCols: []string{
		"user_id", "quest_type", "solved_quest_count",
		"created_at", "closed_at", "country_code", "open",
	},
}

// Changesets reads and writes analyzed changesets.
type Changesets struct {
	pool db.Pool
}

// NewChangesets creates a Changesets store.
func NewChangesets(pool db.Pool) *Changesets {
	return &Changesets{pool: pool}
}

// UpsertBatch inserts or replaces the given changesets by id. Every changeset
// must have its solved quest count resolved; an unset count is a programming
// error upstream.
func (s *Changesets) UpsertBatch(ctx context.Context, changesets []model.Changeset) error {
	if len(changesets) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(changesets))
	for _, cs := range changesets {
		if cs.SolvedQuestCount == nil {
			return eris.Errorf("store: changeset %d has no solved quest count", cs.ID)
		}
		rows = append(rows, []any{
			cs.ID, cs.UserID, cs.QuestType, *cs.SolvedQuestCount,
			cs.CreatedAt, cs.ClosedAt, cs.CountryCode, cs.Open,
		})
	}

	if _, err := db.BulkUpsert(ctx, s.pool, changesetUpsert, rows); err != nil {
		return eris.Wrap(err, "store: upsert changesets")
	}
	return nil
}

// ListOpenIDs returns the ids of the user's changesets still flagged open.
func (s *Changesets) ListOpenIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT changeset_id FROM changesets WHERE user_id = $1 AND open`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list open changesets")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan open changeset id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate open changesets")
	}
	return ids, nil
}

// SolvedCountsByID returns the stored solved quest counts for the given ids.
// Ids never stored are absent from the result.
func (s *Changesets) SolvedCountsByID(ctx context.Context, ids []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT changeset_id, solved_quest_count FROM changesets WHERE changeset_id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "store: load solved counts")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, eris.Wrap(err, "store: scan solved count")
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate solved counts")
	}
	return counts, nil
}

// QuestCounts returns the user's solved quest counts summed per quest type.
func (s *Changesets) QuestCounts(ctx context.Context, userID int64) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT quest_type, SUM(solved_quest_count)
		FROM changesets WHERE user_id = $1
		GROUP BY quest_type`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "store: quest counts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var questType string
		var count int
		if err := rows.Scan(&questType, &count); err != nil {
			return nil, eris.Wrap(err, "store: scan quest count")
		}
		counts[questType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate quest counts")
	}
	return counts, nil
}

// SolvedByCountry returns the user's solved quest counts summed per country.
// Subdivision codes are collapsed into their country, changesets without a
// resolved country are left out.
func (s *Changesets) SolvedByCountry(ctx context.Context, userID int64) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT split_part(country_code, '-', 1), SUM(solved_quest_count)
		FROM changesets WHERE user_id = $1 AND country_code IS NOT NULL
		GROUP BY split_part(country_code, '-', 1)`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "store: solved by country")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var country string
		var count int
		if err := rows.Scan(&country, &count); err != nil {
			return nil, eris.Wrap(err, "store: scan country count")
		}
		counts[country] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate country counts")
	}
	return counts, nil
}

// DaysActive returns the number of distinct days on which the user created
// changesets.
func (s *Changesets) DaysActive(ctx context.Context, userID int64) (int, error) {
	var days int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT created_at::date) FROM changesets WHERE user_id = $1`,
		userID).Scan(&days)
	if err != nil {
		return 0, eris.Wrap(err, "store: days active")
	}
	return days, nil
}
