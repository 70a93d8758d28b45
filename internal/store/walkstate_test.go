package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetcomplete/sc-statistics-service/internal/model"
)

func TestWalkStatesRead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	finished := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	newest := finished.Add(time.Hour)
	lastUpdate := finished.Add(2 * time.Hour)

	mock.ExpectQuery(`SELECT finished_analyzing_before, newest_closed, oldest_created, last_update`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{
			"finished_analyzing_before", "newest_closed", "oldest_created", "last_update",
		}).AddRow(finished, &newest, (*time.Time)(nil), lastUpdate))

	state, err := NewWalkStates(mock).Read(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), state.UserID)
	assert.True(t, state.FinishedBefore.Equal(finished))
	require.NotNil(t, state.NewestClosed)
	assert.True(t, state.NewestClosed.Equal(newest))
	assert.Nil(t, state.OldestCreated)
	assert.True(t, state.InProgress())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkStatesRead_NoRowDefaultsToEpoch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT finished_analyzing_before`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{
			"finished_analyzing_before", "newest_closed", "oldest_created", "last_update",
		}))

	state, err := NewWalkStates(mock).Read(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, state.FinishedBefore.Equal(model.Epoch))
	assert.False(t, state.InProgress())
	assert.True(t, state.LastUpdate.IsZero())
}

func TestWalkStatesAdvance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	newest := time.Date(2023, 6, 1, 11, 0, 0, 0, time.UTC)
	oldest := time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO changesets_walker_state \(user_id\) VALUES \(\$1\)`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SET newest_closed = GREATEST`).
		WithArgs(int64(7), newest).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET oldest_created = LEAST`).
		WithArgs(int64(7), oldest).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET last_update = now\(\)`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewWalkStates(mock).Advance(context.Background(), 7, &newest, &oldest, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkStatesAdvance_Finalize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	newest := time.Date(2023, 6, 1, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO changesets_walker_state \(user_id\) VALUES \(\$1\)`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`SET newest_closed = GREATEST`).
		WithArgs(int64(7), newest).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET finished_analyzing_before = COALESCE\(newest_closed, finished_analyzing_before\)`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewWalkStates(mock).Advance(context.Background(), 7, &newest, nil, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkStatesTouch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`ON CONFLICT \(user_id\) DO UPDATE SET last_update = now\(\)`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewWalkStates(mock).Touch(context.Background(), 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkStatesNextStalled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	olderThan := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE newest_closed IS NOT NULL AND last_update < \$1`).
		WithArgs(olderThan).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(int64(42)))

	userID, ok, err := NewWalkStates(mock).NextStalled(context.Background(), olderThan)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)
}

func TestWalkStatesNextStalled_None(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	olderThan := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE newest_closed IS NOT NULL AND last_update < \$1`).
		WithArgs(olderThan).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))

	_, ok, err := NewWalkStates(mock).NextStalled(context.Background(), olderThan)
	require.NoError(t, err)
	assert.False(t, ok)
}
