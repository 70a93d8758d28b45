package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "changesets",
		Columns:      []string{"changeset_id", "user_id"},
		ConflictKeys: []string{"changeset_id"},
		UpdateCols:   []string{"user_id"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_changesets" \(LIKE "changesets" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_changesets"}, []string{"changeset_id", "user_id"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "changesets" .* ON CONFLICT \("changeset_id"\) DO UPDATE SET "user_id" = EXCLUDED\."user_id"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, cfg, [][]any{
		{int64(1), int64(7)},
		{int64(2), int64(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_DerivesUpdateColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpsertConfig{
		Table:        "boundaries",
		Columns:      []string{"code", "geom"},
		ConflictKeys: []string{"code"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_boundaries"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_boundaries"}, []string{"code", "geom"}).
		WillReturnResult(1)
	mock.ExpectExec(`DO UPDATE SET "geom" = EXCLUDED\."geom"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err = BulkUpsert(context.Background(), mock, cfg, [][]any{{"DE", []byte{1}}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{Table: "t"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsert_MissingConflictKeys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:   "t",
		Columns: []string{"a"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestCopyFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"deleted_user_ids"}, []string{"user_id"}).
		WillReturnResult(3)

	n, err := CopyFrom(context.Background(), mock, "deleted_user_ids", []string{"user_id"}, [][]any{
		{int64(1)}, {int64(2)}, {int64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
