package model

import "time"

// WalkState is the persisted cursor of one user's changeset-history walk.
//
// Each pass walks from the most current changeset backwards to whatever
// instant is in FinishedBefore, which marks up to which closed date the
// user's history has already been fully analyzed. OldestCreated walks
// towards FinishedBefore in page-sized steps; NewestClosed remembers the
// top of the range so that FinishedBefore can be advanced to it once the
// pass completes.
type WalkState struct {
	UserID         int64
	FinishedBefore time.Time
	NewestClosed   *time.Time
	OldestCreated  *time.Time
	LastUpdate     time.Time
}

// InProgress reports whether a pass over the unconverged range has started
// but not yet completed.
func (s WalkState) InProgress() bool { return s.NewestClosed != nil }
