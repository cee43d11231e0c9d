package slicecache

import (
	"strconv"

	"github.com/voxelkit/slicecache/cacheerr"
)

// MakeKey derives the cache key for one slice of one source as
// "<sourceID>:<sliceIndex>". The mapping is deterministic and injective
// over the pair, and all slices of a source share the "<sourceID>:"
// prefix, which is what bulk removal by source relies on.
func MakeKey(sourceID string, sliceIndex int) (string, error) {
	if sourceID == "" {
		return "", cacheerr.New(cacheerr.CodeInvalidArgument, "empty source id")
	}
	if sliceIndex < 0 {
		return "", cacheerr.Newf(cacheerr.CodeInvalidArgument, "negative slice index %d", sliceIndex)
	}
	return sourceID + ":" + strconv.Itoa(sliceIndex), nil
}
