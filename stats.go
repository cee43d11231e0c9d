package slicecache

// Stats is a point-in-time snapshot of the cache's counters and
// occupancy. Counters accumulate from Open (or the last Clear) and are
// never persisted.
type Stats struct {
	Hits             uint64
	Misses           uint64
	Evictions        uint64
	CurrentSizeBytes int64
	EntryCount       int
	// HitRate is Hits / (Hits + Misses), 0 before the first access.
	HitRate float64
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
