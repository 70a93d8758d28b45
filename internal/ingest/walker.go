package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/model"
	"github.com/streetcomplete/sc-statistics-service/internal/osm"
)

// ChangeSource lists changesets and changeset contents from the OSM API.
type ChangeSource interface {
	ListForUser(ctx context.Context, userID int64, closedAfter time.Time, createdBefore *time.Time) ([]model.Changeset, error)
	ListByIDs(ctx context.Context, ids []int64) ([]model.Changeset, error)
}

// ChangesetStore persists analyzed changesets.
type ChangesetStore interface {
	UpsertBatch(ctx context.Context, changesets []model.Changeset) error
	ListOpenIDs(ctx context.Context, userID int64) ([]int64, error)
	SolvedCountsByID(ctx context.Context, ids []int64) (map[int64]int, error)
}

// WalkStateStore persists the per-user walk cursor.
type WalkStateStore interface {
	Read(ctx context.Context, userID int64) (model.WalkState, error)
	Advance(ctx context.Context, userID int64, newestClosed, oldestCreated *time.Time, finalize bool) error
	Touch(ctx context.Context, userID int64) error
	NextStalled(ctx context.Context, olderThan time.Time) (int64, bool, error)
}

// walkPhase enumerates the states of one walk iteration. The budget check
// happens only between iterations, at the top of phaseFetch: one page and its
// enrichment always run to completion once started.
type walkPhase int

const (
	phaseFetch walkPhase = iota
	phaseFilter
	phaseEnrich
	phasePersist
	phaseConverged
	phaseAborted
)

// Walker walks through a user's changeset history to find the relevant
// information for quest statistics.
//
// The OSM API for querying a user's changeset history returns at most 100
// results and supports no real pagination; results can only be limited by a
// closed-date floor and a created-date ceiling. So the walk goes from the
// most current changeset backwards until it reaches the date before which
// the history has already been analyzed. New changesets may have been added
// in the meantime, so the next pass walks down to the changeset that was the
// newest on the previous pass, and so on.
//
// Walking the whole history may take long, so the walk may be cancelled via
// the time budget at any iteration boundary: after each page, the changesets
// and the cursor are already persisted, and a later invocation resumes where
// this one stopped.
type Walker struct {
	source     ChangeSource
	changesets ChangesetStore
	state      WalkStateStore
	analyzer   *Analyzer

	pageSize int
	now      func() time.Time
}

// NewWalker creates a Walker.
func NewWalker(source ChangeSource, changesets ChangesetStore, state WalkStateStore, analyzer *Analyzer) *Walker {
	return &Walker{
		source:     source,
		changesets: changesets,
		state:      state,
		analyzer:   analyzer,
		pageSize:   osm.PageSize,
		now:        time.Now,
	}
}

// AnalyzeUser advances the user's walk state as far as possible within the
// given wall-clock budget (0 = unlimited) and finally re-checks all
// changesets still flagged open. A user unknown to the OSM API aborts the
// walk silently with no state mutated.
func (w *Walker) AnalyzeUser(ctx context.Context, userID int64, budget time.Duration) error {
	start := w.now()
	phase := phaseFetch

	var (
		page          []model.Changeset
		relevant      []model.Changeset
		closedAfter   time.Time
		createdBefore *time.Time
		newestClosed  *time.Time
		oldestCreated *time.Time
	)

walk:
	for {
		switch phase {
		case phaseFetch:
			if budget > 0 && w.now().Sub(start) >= budget {
				phase = phaseAborted
				continue
			}

			state, err := w.state.Read(ctx, userID)
			if err != nil {
				return err
			}
			closedAfter = state.FinishedBefore
			createdBefore = state.OldestCreated

			page, err = w.source.ListForUser(ctx, userID, closedAfter, createdBefore)
			if eris.Is(err, osm.ErrNotFound) {
				// the OSM API doesn't know this user
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "ingest: fetch changesets for user %d", userID)
			}
			if len(page) == 0 {
				// nothing new; prior convergence unaffected
				if err := w.state.Touch(ctx, userID); err != nil {
					return err
				}
				phase = phaseConverged
				continue
			}
			phase = phaseFilter

		case phaseFilter:
			newestClosed, oldestCreated = pageWatermarks(page)
			relevant = relevant[:0]
			for _, cs := range page {
				if cs.Relevant() {
					relevant = append(relevant, cs)
				}
			}
			phase = phaseEnrich

		case phaseEnrich:
			var err error
			relevant, err = w.enrichAll(ctx, relevant)
			if err != nil {
				return err
			}
			phase = phasePersist

		case phasePersist:
			if len(relevant) > 0 {
				if err := w.changesets.UpsertBatch(ctx, relevant); err != nil {
					return err
				}
			}

			// Convergence check A: the closed date of the newest changeset
			// in the page equals the date before which the history has
			// already been analyzed, and this was the first fetch of a pass.
			// The whole range was covered by a previous pass.
			if createdBefore == nil && newestClosed != nil && newestClosed.Equal(closedAfter) {
				if err := w.state.Advance(ctx, userID, newestClosed, oldestCreated, true); err != nil {
					return err
				}
				phase = phaseConverged
				continue
			}

			// Convergence check B: the API always returns full pages unless
			// there are no more, so a short page means we walked off the
			// oldest edge of the range.
			finalize := len(page) < w.pageSize
			if err := w.state.Advance(ctx, userID, newestClosed, oldestCreated, finalize); err != nil {
				return err
			}
			if finalize {
				phase = phaseConverged
				continue
			}
			phase = phaseFetch

		case phaseConverged, phaseAborted:
			break walk
		}
	}

	return w.recheckOpen(ctx, userID)
}

// AnalyzeStale resumes walks for users whose pass is still in progress and
// whose state has not been touched since olderThan, one user at a time,
// oldest first, until no such user remains or the budget (0 = unlimited) is
// exhausted. This guarantees forward progress for users whose interactive
// request was cut off by budget exhaustion.
func (w *Walker) AnalyzeStale(ctx context.Context, olderThan time.Time, budget time.Duration) error {
	start := w.now()
	var lastUserID int64

	for {
		if budget > 0 && w.now().Sub(start) >= budget {
			return nil
		}

		userID, ok, err := w.state.NextStalled(ctx, olderThan)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		// A user the API no longer knows leaves its state untouched and
		// would be selected again forever.
		if userID == lastUserID {
			return nil
		}
		lastUserID = userID

		zap.L().Info("ingest: resuming stalled walk", zap.Int64("user_id", userID))
		if err := w.AnalyzeUser(ctx, userID, 0); err != nil {
			return err
		}
	}
}

// enrichAll analyzes the given changesets and resolves the solved-count
// fallback: if the element data was unobtainable, the previously stored
// count is kept, or the raw change count if the changeset was never stored.
func (w *Walker) enrichAll(ctx context.Context, changesets []model.Changeset) ([]model.Changeset, error) {
	if len(changesets) == 0 {
		return changesets, nil
	}

	ids := make([]int64, len(changesets))
	for i, cs := range changesets {
		ids[i] = cs.ID
	}
	previous, err := w.changesets.SolvedCountsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	enriched := make([]model.Changeset, 0, len(changesets))
	for _, cs := range changesets {
		out, err := w.analyzer.Enrich(ctx, cs)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: analyze changeset %d", cs.ID)
		}
		if out.SolvedQuestCount == nil {
			if prev, ok := previous[out.ID]; ok {
				out.SolvedQuestCount = &prev
			} else {
				raw := out.RawChangeCount
				out.SolvedQuestCount = &raw
			}
		}
		enriched = append(enriched, out)
	}
	return enriched, nil
}

// recheckOpen re-fetches and re-analyzes every changeset still flagged open
// for the user. It runs on every walk invocation, whichever way the walk
// ended: a changeset that closed since it was last seen may never reappear
// in a fetched page, so this is the only place its solved count and closed
// state get repaired.
func (w *Walker) recheckOpen(ctx context.Context, userID int64) error {
	ids, err := w.changesets.ListOpenIDs(ctx, userID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	fetched, err := w.source.ListByIDs(ctx, ids)
	if eris.Is(err, osm.ErrNotFound) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "ingest: refetch open changesets")
	}
	if len(fetched) == 0 {
		return nil
	}

	enriched, err := w.enrichAll(ctx, fetched)
	if err != nil {
		return err
	}
	return w.changesets.UpsertBatch(ctx, enriched)
}

// pageWatermarks computes the oldest created and newest closed instants over
// a whole page, before any tag filtering.
func pageWatermarks(page []model.Changeset) (newestClosed, oldestCreated *time.Time) {
	for _, cs := range page {
		created := cs.CreatedAt
		if oldestCreated == nil || created.Before(*oldestCreated) {
			oldestCreated = &created
		}
		if cs.ClosedAt != nil {
			closed := *cs.ClosedAt
			if newestClosed == nil || closed.After(*newestClosed) {
				newestClosed = &closed
			}
		}
	}
	return newestClosed, oldestCreated
}
