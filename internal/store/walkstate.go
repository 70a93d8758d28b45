package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
	"github.com/streetcomplete/sc-statistics-service/internal/model"
)

// WalkStates reads and writes the per-user history walk cursor.
type WalkStates struct {
	pool db.Pool
}

// NewWalkStates creates a WalkStates store.
func NewWalkStates(pool db.Pool) *WalkStates {
	return &WalkStates{pool: pool}
}

// Read returns the user's walk state. A user never walked gets a fresh state
// with FinishedBefore at the epoch and no watermarks; no row is created.
func (s *WalkStates) Read(ctx context.Context, userID int64) (model.WalkState, error) {
	state := model.WalkState{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		SELECT finished_analyzing_before, newest_closed, oldest_created, last_update
		FROM changesets_walker_state WHERE user_id = $1`, userID).
		Scan(&state.FinishedBefore, &state.NewestClosed, &state.OldestCreated, &state.LastUpdate)
	if eris.Is(err, pgx.ErrNoRows) {
		return model.WalkState{UserID: userID, FinishedBefore: model.Epoch}, nil
	}
	if err != nil {
		return model.WalkState{}, eris.Wrapf(err, "store: read walk state for user %d", userID)
	}
	return state, nil
}

// Advance moves the user's watermarks and touches last_update, all in one
// transaction. The newest-closed watermark only ever grows and the
// oldest-created watermark only ever shrinks, so concurrent walkers cannot
// move either backwards. With finalize set, the pass is closed out:
// finished_analyzing_before takes the newest-closed value and both
// watermarks are cleared.
func (s *WalkStates) Advance(ctx context.Context, userID int64, newestClosed, oldestCreated *time.Time, finalize bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: begin walk state tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO changesets_walker_state (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return eris.Wrap(err, "store: ensure walk state row")
	}

	if newestClosed != nil {
		_, err = tx.Exec(ctx, `
			UPDATE changesets_walker_state
			SET newest_closed = GREATEST(COALESCE(newest_closed, '-infinity'::timestamptz), $2)
			WHERE user_id = $1`, userID, *newestClosed)
		if err != nil {
			return eris.Wrap(err, "store: advance newest closed")
		}
	}
	if oldestCreated != nil {
		_, err = tx.Exec(ctx, `
			UPDATE changesets_walker_state
			SET oldest_created = LEAST(COALESCE(oldest_created, 'infinity'::timestamptz), $2)
			WHERE user_id = $1`, userID, *oldestCreated)
		if err != nil {
			return eris.Wrap(err, "store: advance oldest created")
		}
	}

	if finalize {
		_, err = tx.Exec(ctx, `
			UPDATE changesets_walker_state
			SET finished_analyzing_before = COALESCE(newest_closed, finished_analyzing_before),
			    newest_closed = NULL,
			    oldest_created = NULL,
			    last_update = now()
			WHERE user_id = $1`, userID)
		if err != nil {
			return eris.Wrap(err, "store: finalize walk state")
		}
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE changesets_walker_state SET last_update = now() WHERE user_id = $1`, userID)
		if err != nil {
			return eris.Wrap(err, "store: touch walk state")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: commit walk state tx")
	}
	return nil
}

// Touch updates the user's last_update, creating the state row if absent.
func (s *WalkStates) Touch(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO changesets_walker_state (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET last_update = now()`, userID)
	if err != nil {
		return eris.Wrapf(err, "store: touch walk state for user %d", userID)
	}
	return nil
}

// NextStalled returns the user with the longest-untouched in-progress pass
// older than the given instant, if any.
func (s *WalkStates) NextStalled(ctx context.Context, olderThan time.Time) (int64, bool, error) {
	var userID int64
	err := s.pool.QueryRow(ctx, `
		SELECT user_id FROM changesets_walker_state
		WHERE newest_closed IS NOT NULL AND last_update < $1
		ORDER BY last_update
		LIMIT 1`, olderThan).Scan(&userID)
	if eris.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "store: next stalled walk")
	}
	return userID, true, nil
}
