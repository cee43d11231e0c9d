// Package eviction plans which cache entries to remove when a write
// would push the cache over its byte budget.
//
// The policy is LRU by last-access time: the planner walks live entries
// oldest-first and keeps taking them until enough bytes are freed. This
// is a greedy approximation, not a byte-optimal set; recency is the
// policy goal, not packing.
package eviction

import (
	"slices"
	"time"

	"github.com/voxelkit/slicecache/cacheerr"
)

// Candidate describes one live entry as seen by the planner.
type Candidate struct {
	Key            string
	SizeBytes      int64
	LastAccessedAt time.Time
}

// Plan selects an ordered minimal set of victims whose removal admits a
// new entry of requiredBytes without exceeding maxBytes. Victims come
// back oldest-first; ties on access time break by key so the plan is
// deterministic.
//
// When requiredBytes alone can never fit the budget, Plan fails with an
// entry-too-large error before anything is evicted: the caller must not
// pay for evictions that cannot help.
func Plan(live []Candidate, currentSize, requiredBytes, maxBytes int64) ([]Candidate, error) {
	if requiredBytes > maxBytes {
		return nil, cacheerr.Newf(cacheerr.CodeEntryTooLarge,
			"entry of %d bytes exceeds the %d byte budget", requiredBytes, maxBytes)
	}
	if currentSize+requiredBytes <= maxBytes {
		return nil, nil
	}

	ordered := slices.Clone(live)
	slices.SortFunc(ordered, func(a, b Candidate) int {
		if c := a.LastAccessedAt.Compare(b.LastAccessedAt); c != 0 {
			return c
		}
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})

	var victims []Candidate
	var freed int64
	for _, c := range ordered {
		if currentSize-freed+requiredBytes <= maxBytes {
			break
		}
		victims = append(victims, c)
		freed += c.SizeBytes
	}

	if currentSize-freed+requiredBytes > maxBytes {
		// The entire live set was exhausted and the entry still does not
		// fit. currentSize may lag the real total here, so report it the
		// same way as the pre-check.
		return nil, cacheerr.Newf(cacheerr.CodeEntryTooLarge,
			"entry of %d bytes cannot fit the %d byte budget even with the cache empty", requiredBytes, maxBytes)
	}
	return victims, nil
}
