package osm

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/streetcomplete/sc-statistics-service/internal/model"
)

// osmChangeXML mirrors the OsmChange document of the changeset download
// endpoint. Only <modify> blocks are mapped: elements that appear solely in
// <create> blocks are new nodes/ways spawned by splitting a way, and a single
// split-driven edit must not inflate the solved count.
type osmChangeXML struct {
	XMLName xml.Name         `xml:"osmChange"`
	Modify  []changeBlockXML `xml:"modify"`
}

type changeBlockXML struct {
	Nodes     []elementXML `xml:"node"`
	Ways      []elementXML `xml:"way"`
	Relations []elementXML `xml:"relation"`
}

type elementXML struct {
	ID int64 `xml:"id,attr"`
}

// ModifiedElementIDs downloads the changeset content and returns the ids of
// the elements it modified, per element kind. Returns ErrNotFound if the
// changeset is unknown upstream.
func (c *Client) ModifiedElementIDs(ctx context.Context, changesetID int64) (*model.ElementIDs, error) {
	url := fmt.Sprintf("%s/changeset/%d/download", c.baseURL, changesetID)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseModifiedElementIDs(body)
}

func parseModifiedElementIDs(body []byte) (*model.ElementIDs, error) {
	var change osmChangeXML
	if err := decodeXML(bytes.NewReader(body), &change); err != nil {
		return nil, eris.Wrap(err, "osm: decode osmChange")
	}

	ids := &model.ElementIDs{}
	for _, block := range change.Modify {
		for _, n := range block.Nodes {
			ids.Nodes = append(ids.Nodes, n.ID)
		}
		for _, w := range block.Ways {
			ids.Ways = append(ids.Ways, w.ID)
		}
		for _, r := range block.Relations {
			ids.Relations = append(ids.Relations, r.ID)
		}
	}
	return ids, nil
}
