// Package ingest contains the incremental changeset ingestion engine: the
// resumable history walker, the changeset analyzer and the revert-aware
// solved-quest counter.
package ingest

import "github.com/streetcomplete/sc-statistics-service/internal/model"

// SolvedCount returns the number of genuinely changed elements in a multiset
// of modified element ids, subtracting any reverts.
//
// If an element id occurs several times in one changeset, every other
// occurrence is assumed to be a revert: changed once is +1 change; twice is a
// change and its revert; three times is change, revert, change again. So an
// id counts as +1 iff it occurs an odd number of times.
func SolvedCount(elementIDs []int64) int {
	counts := make(map[int64]int, len(elementIDs))
	for _, id := range elementIDs {
		counts[id]++
	}

	result := 0
	for _, count := range counts {
		if count%2 != 0 {
			result++
		}
	}
	return result
}

// solvedTotal sums the revert-aware counts over the three element kinds.
// The kinds are disjoint id spaces and counted independently.
func solvedTotal(ids model.ElementIDs) int {
	return SolvedCount(ids.Nodes) + SolvedCount(ids.Ways) + SolvedCount(ids.Relations)
}
