package osm

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/streetcomplete/sc-statistics-service/internal/model"
)

// changesetsXML mirrors the <osm> envelope of the changesets endpoint.
type changesetsXML struct {
	XMLName    xml.Name       `xml:"osm"`
	Changesets []changesetXML `xml:"changeset"`
}

type changesetXML struct {
	ID           int64    `xml:"id,attr"`
	UID          int64    `xml:"uid,attr"`
	ChangesCount int      `xml:"changes_count,attr"`
	CreatedAt    string   `xml:"created_at,attr"`
	ClosedAt     string   `xml:"closed_at,attr"`
	Open         bool     `xml:"open,attr"`
	MinLat       *float64 `xml:"min_lat,attr"`
	MaxLat       *float64 `xml:"max_lat,attr"`
	MinLon       *float64 `xml:"min_lon,attr"`
	MaxLon       *float64 `xml:"max_lon,attr"`
	Tags         []tagXML `xml:"tag"`
}

type tagXML struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

// ListForUser fetches one page of the user's changesets with
// closed_at > closedAfter and, if given, created_at < createdBefore, ordered
// most-recent-first. At most PageSize changesets are returned; the API offers
// no other pagination. Returns ErrNotFound if the user is unknown upstream.
func (c *Client) ListForUser(ctx context.Context, userID int64, closedAfter time.Time, createdBefore *time.Time) ([]model.Changeset, error) {
	timeParam := closedAfter.UTC().Format(time.RFC3339)
	if createdBefore != nil {
		timeParam += "," + createdBefore.UTC().Format(time.RFC3339)
	}

	params := url.Values{}
	params.Set("user", strconv.FormatInt(userID, 10))
	params.Set("time", timeParam)

	body, err := c.get(ctx, c.baseURL+"/changesets?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return parseChangesets(bytes.NewReader(body))
}

// ListByIDs fetches the given changesets by id.
func (c *Client) ListByIDs(ctx context.Context, ids []int64) ([]model.Changeset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatInt(id, 10)
	}
	params := url.Values{}
	params.Set("changesets", strings.Join(strs, ","))

	body, err := c.get(ctx, c.baseURL+"/changesets?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return parseChangesets(bytes.NewReader(body))
}

// parseChangesets is the parsing boundary between the raw API payload and
// the model. All field extraction happens here.
func parseChangesets(r io.Reader) ([]model.Changeset, error) {
	var envelope changesetsXML
	if err := decodeXML(r, &envelope); err != nil {
		return nil, eris.Wrap(err, "osm: decode changesets")
	}

	changesets := make([]model.Changeset, 0, len(envelope.Changesets))
	for _, raw := range envelope.Changesets {
		cs, err := parseChangeset(raw)
		if err != nil {
			return nil, err
		}
		changesets = append(changesets, cs)
	}
	return changesets, nil
}

func parseChangeset(raw changesetXML) (model.Changeset, error) {
	createdAt, err := time.Parse(time.RFC3339, raw.CreatedAt)
	if err != nil {
		return model.Changeset{}, eris.Wrapf(err, "osm: changeset %d: parse created_at", raw.ID)
	}

	cs := model.Changeset{
		ID:             raw.ID,
		UserID:         raw.UID,
		RawChangeCount: raw.ChangesCount,
		CreatedAt:      createdAt.UTC(),
		Open:           raw.Open,
	}

	if raw.ClosedAt != "" {
		closedAt, err := time.Parse(time.RFC3339, raw.ClosedAt)
		if err != nil {
			return model.Changeset{}, eris.Wrapf(err, "osm: changeset %d: parse closed_at", raw.ID)
		}
		utc := closedAt.UTC()
		cs.ClosedAt = &utc
	}

	// An empty changeset has no bounding box.
	if raw.MinLat != nil && raw.MaxLat != nil && raw.MinLon != nil && raw.MaxLon != nil {
		cs.BBox = &model.BoundingBox{
			MinLon: *raw.MinLon,
			MinLat: *raw.MinLat,
			MaxLon: *raw.MaxLon,
			MaxLat: *raw.MaxLat,
		}
	}

	for _, tag := range raw.Tags {
		if tag.K == model.QuestTypeTag {
			cs.QuestType = tag.V
			break
		}
	}

	return cs, nil
}

// decodeXML decodes a whole document into v, resolving non-UTF-8 charsets
// declared in the XML prolog.
func decodeXML(r io.Reader, v any) error {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "osm: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder.Decode(v)
}
