// Package quota tracks the running byte total of the cache against the
// configured budget and, optionally, against the host's reported storage
// capacity.
package quota

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// HostQuota reports host-level storage usage as a best-effort secondary
// signal. Implementations that cannot determine usage should return
// ok=false; the budget in [Tracker] remains the primary contract either
// way.
type HostQuota interface {
	// Usage returns used and total bytes of the backing storage medium.
	Usage() (used, total uint64, ok bool)
}

// Tracker maintains the cache's byte accounting. Current is O(1) and
// updated incrementally on insert and removal, never recomputed by
// scanning.
type Tracker struct {
	size atomic.Int64

	max    int64
	host   HostQuota
	margin float64
	log    zerolog.Logger
}

// New creates a Tracker with the given budget. host may be nil; margin is
// the fraction of host capacity beyond which writes are blocked (0 means
// the default of 0.9).
func New(maxBytes int64, host HostQuota, margin float64, log zerolog.Logger) *Tracker {
	if margin <= 0 || margin > 1 {
		margin = 0.9
	}
	return &Tracker{max: maxBytes, host: host, margin: margin, log: log}
}

// Current returns the tracked byte total.
func (t *Tracker) Current() int64 {
	return t.size.Load()
}

// Max returns the configured budget in bytes.
func (t *Tracker) Max() int64 {
	return t.max
}

// WouldExceed reports whether adding additionalBytes would push the cache
// over its budget.
func (t *Tracker) WouldExceed(additionalBytes int64) bool {
	return t.size.Load()+additionalBytes > t.max
}

// HostBlocked reports whether the host's own storage usage is past the
// safety margin. It is best-effort: probe failures never block a write.
func (t *Tracker) HostBlocked() bool {
	if t.host == nil {
		return false
	}
	used, total, ok := t.host.Usage()
	if !ok || total == 0 {
		return false
	}
	return float64(used) > float64(total)*t.margin
}

// Record applies a signed byte delta: positive on insert, negative on
// removal. The total is clamped at zero; going negative means the
// accounting and the store disagree, which is logged and healed rather
// than propagated.
func (t *Tracker) Record(delta int64) {
	if n := t.size.Add(delta); n < 0 {
		t.log.Warn().
			Int64("delta", delta).
			Int64("total", n).
			Msg("quota accounting went negative, clamping to zero")
		t.size.Store(0)
	}
}

// Reset zeroes the tracked total. Used by Clear.
func (t *Tracker) Reset() {
	t.size.Store(0)
}
