// Package model holds the value types shared across the statistics service.
package model

import "time"

// Epoch is the earliest instant any relevant changeset can have been closed:
// the initial release date of the app. Walk state for a new user starts here.
var Epoch = time.Date(2017, time.February, 20, 0, 0, 0, 0, time.UTC)

// QuestTypeTag is the changeset tag key the app attaches to every upload.
// Changesets without this tag are not relevant for statistics.
const QuestTypeTag = "StreetComplete:quest_type"

// BoundingBox is the extent of a changeset as reported by the OSM API.
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Center returns the representative point of the box. The latitude is the
// arithmetic midpoint. The longitude is too, unless the west and east edges
// have opposite sign: then the box appears to straddle the 180th meridian and
// the east edge is used instead. This is a deliberate approximation for the
// jokers that cross the antimeridian within one changeset, not a true
// circular midpoint; downstream consumers depend on it as is.
func (b BoundingBox) Center() (lon, lat float64) {
	lat = (b.MinLat + b.MaxLat) / 2
	if sign(b.MinLon) != sign(b.MaxLon) {
		lon = b.MaxLon
	} else {
		lon = (b.MinLon + b.MaxLon) / 2
	}
	return lon, lat
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Changeset is one edit session of a user, reduced to the fields the
// statistics service cares about.
type Changeset struct {
	ID               int64
	UserID           int64
	RawChangeCount   int
	SolvedQuestCount *int
	CreatedAt        time.Time
	ClosedAt         *time.Time
	Open             bool
	BBox             *BoundingBox
	CountryCode      *string
	QuestType        string
}

// Relevant reports whether the changeset carries the app tag and therefore
// may be persisted.
func (c Changeset) Relevant() bool { return c.QuestType != "" }

// ElementIDs holds the ids of elements touched by a changeset, split by
// element kind. The same id may appear several times if the element was
// changed several times within the changeset.
type ElementIDs struct {
	Nodes     []int64
	Ways      []int64
	Relations []int64
}
