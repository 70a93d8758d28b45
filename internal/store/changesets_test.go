package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetcomplete/sc-statistics-service/internal/model"
)

func TestChangesetsUpsertBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	solved := 2
	country := "DE"
	closed := time.Date(2023, 6, 1, 10, 5, 0, 0, time.UTC)
	cs := model.Changeset{
		ID: 101, UserID: 7, QuestType: "AddHousenumber",
		SolvedQuestCount: &solved,
		CreatedAt:        time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC),
		ClosedAt:         &closed,
		CountryCode:      &country,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_changesets"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_changesets"}, []string{
		"changeset_id", "user_id", "quest_type", "solved_quest_count",
		"created_at", "closed_at", "country_code", "open",
	}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "changesets" .* ON CONFLICT \("changeset_id"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = NewChangesets(mock).UpsertBatch(context.Background(), []model.Changeset{cs})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangesetsUpsertBatch_RejectsUnresolvedCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = NewChangesets(mock).UpsertBatch(context.Background(), []model.Changeset{
		{ID: 101, UserID: 7, QuestType: "AddHousenumber"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no solved quest count")
}

func TestChangesetsUpsertBatch_EmptyIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	require.NoError(t, NewChangesets(mock).UpsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangesetsListOpenIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT changeset_id FROM changesets WHERE user_id = \$1 AND open`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"changeset_id"}).
			AddRow(int64(101)).AddRow(int64(102)))

	ids, err := NewChangesets(mock).ListOpenIDs(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 102}, ids)
}

func TestChangesetsSolvedCountsByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT changeset_id, solved_quest_count FROM changesets WHERE changeset_id = ANY\(\$1\)`).
		WithArgs([]int64{101, 102}).
		WillReturnRows(pgxmock.NewRows([]string{"changeset_id", "solved_quest_count"}).
			AddRow(int64(101), 5))

	counts, err := NewChangesets(mock).SolvedCountsByID(context.Background(), []int64{101, 102})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{101: 5}, counts)
}

func TestChangesetsSolvedCountsByID_EmptySkipsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	counts, err := NewChangesets(mock).SolvedCountsByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangesetsQuestCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT quest_type, SUM\(solved_quest_count\)`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"quest_type", "sum"}).
			AddRow("AddHousenumber", 12).
			AddRow("AddOpeningHours", 3))

	counts, err := NewChangesets(mock).QuestCounts(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"AddHousenumber": 12, "AddOpeningHours": 3}, counts)
}

func TestChangesetsSolvedByCountry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT split_part\(country_code, '-', 1\), SUM\(solved_quest_count\)`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"split_part", "sum"}).
			AddRow("DE", 10).
			AddRow("NL", 2))

	counts, err := NewChangesets(mock).SolvedByCountry(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"DE": 10, "NL": 2}, counts)
}

func TestChangesetsDaysActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT created_at::date\)`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	days, err := NewChangesets(mock).DaysActive(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 42, days)
}
