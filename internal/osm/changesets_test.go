package osm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const changesetsPayload = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <changeset id="101" uid="7" created_at="2023-06-01T10:00:00Z" closed_at="2023-06-01T10:05:00Z"
             open="false" changes_count="3" min_lat="51.0" min_lon="6.0" max_lat="51.1" max_lon="6.1">
    <tag k="created_by" v="StreetComplete 50.0"/>
    <tag k="StreetComplete:quest_type" v="AddHousenumber"/>
  </changeset>
  <changeset id="102" uid="7" created_at="2023-06-01T09:00:00Z" open="true" changes_count="1">
    <tag k="comment" v="manual edit"/>
  </changeset>
</osm>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, RequestsPerSec: 1000})
}

func TestListForUser_ParsesPage(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.True(t, strings.HasPrefix(r.UserAgent(), "sc-statistics-service"))
		w.Write([]byte(changesetsPayload))
	})

	closedAfter := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	changesets, err := client.ListForUser(context.Background(), 7, closedAfter, nil)
	require.NoError(t, err)
	require.Len(t, changesets, 2)

	assert.Contains(t, gotQuery, "user=7")
	assert.Contains(t, gotQuery, "2023-05-01T00%3A00%3A00Z")

	first := changesets[0]
	assert.Equal(t, int64(101), first.ID)
	assert.Equal(t, int64(7), first.UserID)
	assert.Equal(t, 3, first.RawChangeCount)
	assert.Equal(t, "AddHousenumber", first.QuestType)
	assert.True(t, first.Relevant())
	assert.False(t, first.Open)
	require.NotNil(t, first.ClosedAt)
	require.NotNil(t, first.BBox)
	assert.InDelta(t, 6.0, first.BBox.MinLon, 1e-9)
	assert.InDelta(t, 51.1, first.BBox.MaxLat, 1e-9)

	second := changesets[1]
	assert.True(t, second.Open)
	assert.Nil(t, second.ClosedAt)
	assert.Nil(t, second.BBox)
	assert.False(t, second.Relevant())
}

func TestListForUser_CreatedBeforeExtendsTimeParam(t *testing.T) {
	var gotTime string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotTime = r.URL.Query().Get("time")
		w.Write([]byte(`<osm/>`))
	})

	closedAfter := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	createdBefore := time.Date(2023, 5, 20, 12, 0, 0, 0, time.UTC)
	_, err := client.ListForUser(context.Background(), 7, closedAfter, &createdBefore)
	require.NoError(t, err)

	assert.Equal(t, "2023-05-01T00:00:00Z,2023-05-20T12:00:00Z", gotTime)
}

func TestListForUser_UnknownUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.ListForUser(context.Background(), 999, time.Now(), nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestListForUser_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ListForUser(context.Background(), 7, time.Now(), nil)
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrNotFound))
}

func TestListByIDs(t *testing.T) {
	var gotParam string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotParam = r.URL.Query().Get("changesets")
		w.Write([]byte(changesetsPayload))
	})

	changesets, err := client.ListByIDs(context.Background(), []int64{101, 102})
	require.NoError(t, err)
	assert.Equal(t, "101,102", gotParam)
	assert.Len(t, changesets, 2)
}

func TestListByIDs_EmptySkipsRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})

	changesets, err := client.ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, changesets)
}

func TestParseChangesets_BadTimestamp(t *testing.T) {
	payload := `<osm><changeset id="1" uid="2" created_at="not-a-date"/></osm>`
	_, err := parseChangesets(strings.NewReader(payload))
	require.Error(t, err)
}

func TestParseChangeset_PartialBBoxDropped(t *testing.T) {
	payload := `<osm><changeset id="1" uid="2" created_at="2023-06-01T10:00:00Z" min_lat="1.0"/></osm>`
	changesets, err := parseChangesets(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, changesets, 1)
	assert.Nil(t, changesets[0].BBox)
}
