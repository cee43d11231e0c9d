// Package hot provides an optional in-process read tier in front of the
// durable store, backed by ristretto. It holds already-decoded entries so
// repeat reads of the same slice skip both the store round trip and the
// record decode.
//
// The tier is a pure optimization: the engine keeps it coherent by
// dropping keys on every delete, eviction, and clear, and correctness
// never depends on a hot hit.
package hot

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/voxelkit/slicecache/entry"
)

// Tier is a bounded in-process cache of decoded entries. Each entry's
// ristretto cost is its payload size so the tier's own budget is
// byte-accurate.
type Tier struct {
	rc *ristretto.Cache[string, *entry.Entry]
}

// NewTier creates a Tier bounded to maxBytes of decoded payloads.
func NewTier(maxBytes int64) (*Tier, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, *entry.Entry]{
		// Ristretto sizes its admission counters by expected entry count;
		// assume slices of roughly 64 KiB.
		NumCounters: max(maxBytes/(64<<10)*10, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Tier{rc: rc}, nil
}

// Get returns the decoded entry cached under key, if any. The caller must
// not mutate the result; the engine clones before handing it out.
func (t *Tier) Get(key string) (*entry.Entry, bool) {
	return t.rc.Get(key)
}

// Set caches e under its key at a cost of its payload size. Admission is
// best-effort; ristretto may decline.
func (t *Tier) Set(e *entry.Entry) {
	t.rc.Set(e.Key, e, e.SizeBytes())
}

// Del drops the key from the tier.
func (t *Tier) Del(key string) {
	t.rc.Del(key)
}

// Clear drops every cached entry.
func (t *Tier) Clear() {
	t.rc.Clear()
}

// Wait blocks until buffered writes are applied. Tests use it to make
// Set visible before asserting.
func (t *Tier) Wait() {
	t.rc.Wait()
}

// Close releases the tier.
func (t *Tier) Close() {
	t.rc.Close()
}
