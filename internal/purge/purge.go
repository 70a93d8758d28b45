// Package purge removes all data of users whose OSM accounts were deleted.
package purge

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streetcomplete/sc-statistics-service/internal/db"
)

// DefaultDeletedUsersURL is the list of deleted OSM user ids published by the
// OSMF.
const DefaultDeletedUsersURL = "https://planet.openstreetmap.org/users_deleted/users_deleted.txt"

// tables lists every table keyed by user_id, in deletion order.
var tables = []string{
	"changesets",
	"changesets_walker_state",
	"user_ranks",
	"user_ranks_current_week",
	"user_ranks_last_week",
}

// Purger downloads the deleted-users list and removes every row belonging to
// a deleted user.
type Purger struct {
	pool       db.Pool
	httpClient *http.Client
	url        string
}

// New creates a Purger. An empty url selects DefaultDeletedUsersURL.
func New(pool db.Pool, url string) *Purger {
	if url == "" {
		url = DefaultDeletedUsersURL
	}
	return &Purger{
		pool:       pool,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		url:        url,
	}
}

// Run purges all data of deleted users and returns the number of changesets
// removed.
func (p *Purger) Run(ctx context.Context) (int64, error) {
	ids, err := p.fetchDeletedIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	zap.L().Info("purge: fetched deleted user ids", zap.Int("count", len(ids)))
	return p.deleteUsers(ctx, ids)
}

// fetchDeletedIDs downloads the deleted-users list, one id per line. Comment
// and header lines are skipped.
func (p *Purger) fetchDeletedIDs(ctx context.Context) ([]int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "purge: build request")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "purge: fetch %s", p.url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("purge: fetch %s: status %d", p.url, resp.StatusCode)
	}

	var ids []int64
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "purge: read deleted users list")
	}
	return ids, nil
}

// deleteUsers removes all rows of the given users in one transaction, using a
// temp table so the id list never hits query size limits.
func (p *Purger) deleteUsers(ctx context.Context, ids []int64) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "purge: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`CREATE TEMP TABLE deleted_user_ids (user_id BIGINT PRIMARY KEY) ON COMMIT DROP`)
	if err != nil {
		return 0, eris.Wrap(err, "purge: create temp table")
	}

	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []any{id})
	}
	if _, err := db.CopyFrom(ctx, tx, "deleted_user_ids", []string{"user_id"}, rows); err != nil {
		return 0, eris.Wrap(err, "purge: copy deleted user ids")
	}

	var changesetsDeleted int64
	for _, table := range tables {
		tag, err := tx.Exec(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE user_id IN (SELECT user_id FROM deleted_user_ids)`, table))
		if err != nil {
			return 0, eris.Wrapf(err, "purge: delete from %s", table)
		}
		if table == "changesets" {
			changesetsDeleted = tag.RowsAffected()
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "purge: commit tx")
	}
	return changesetsDeleted, nil
}
