package osm

import (
	"context"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const osmChangePayload = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6">
  <create>
    <node id="900" lat="51.0" lon="6.0"/>
    <way id="901"/>
  </create>
  <modify>
    <node id="1"/>
    <node id="2"/>
    <way id="10"/>
  </modify>
  <modify>
    <node id="1"/>
    <relation id="20"/>
  </modify>
  <delete>
    <node id="3"/>
  </delete>
</osmChange>`

func TestParseModifiedElementIDs(t *testing.T) {
	ids, err := parseModifiedElementIDs([]byte(osmChangePayload))
	require.NoError(t, err)

	// Created and deleted elements stay out; repeated modifications stay in,
	// the revert-aware counter needs the multiplicity.
	assert.Equal(t, []int64{1, 2, 1}, ids.Nodes)
	assert.Equal(t, []int64{10}, ids.Ways)
	assert.Equal(t, []int64{20}, ids.Relations)
}

func TestParseModifiedElementIDs_NoModifications(t *testing.T) {
	ids, err := parseModifiedElementIDs([]byte(`<osmChange><create><node id="1"/></create></osmChange>`))
	require.NoError(t, err)
	assert.Empty(t, ids.Nodes)
	assert.Empty(t, ids.Ways)
	assert.Empty(t, ids.Relations)
}

func TestModifiedElementIDs_DownloadPath(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(osmChangePayload))
	})

	ids, err := client.ModifiedElementIDs(context.Background(), 123)
	require.NoError(t, err)
	assert.Equal(t, "/changeset/123/download", gotPath)
	assert.Len(t, ids.Nodes, 3)
}

func TestModifiedElementIDs_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.ModifiedElementIDs(context.Background(), 123)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}
