// Package slicecache is a durable, budget-bounded cache for decoded
// medical-image slices. Decoded pixel buffers and their display metadata
// are persisted in a local store (bbolt by default) so a volumetric
// study is decoded once and replayed across viewer sessions without
// touching the decode pipeline again.
//
// The cache enforces a byte budget with LRU eviction, expires entries
// lazily at read time, and isolates corrupt records: a record that fails
// to decode is purged and reported as a miss, never as a fatal error.
//
// Concurrency: operations on the same key are serialized; a second
// operation on a held key queues until the first completes. Reads and
// deletes on distinct keys proceed concurrently. Put admission is
// serialized across keys: the budget check, the eviction pass, and the
// insert form one atomic decision, so the byte budget holds after every
// completed put. On failure after eviction, the evictions remain visible
// and the insert reports the error, so the cache can end up under-filled
// but never over-filled.
package slicecache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/voxelkit/slicecache/cacheerr"
	"github.com/voxelkit/slicecache/entry"
	"github.com/voxelkit/slicecache/eviction"
	"github.com/voxelkit/slicecache/hot"
	"github.com/voxelkit/slicecache/internal/keymutex"
	"github.com/voxelkit/slicecache/quota"
	"github.com/voxelkit/slicecache/store"
)

// indexMeta is the in-memory bookkeeping for one live entry. The index
// mirrors the durable store and is rebuilt from it on Open, which keeps
// quota accounting O(1) during operation.
type indexMeta struct {
	sourceID       string
	size           int64
	createdAt      time.Time
	lastAccessedAt time.Time
}

// Cache is a durable slice cache instance bound to one store namespace.
// One instance per namespace is expected; collaborators share the
// instance rather than opening the namespace twice.
type Cache struct {
	cfg    Config
	store  store.Store
	quota  *quota.Tracker
	locks  *keymutex.Map
	hot    *hot.Tier
	log    zerolog.Logger
	tracer trace.Tracer

	nowFunc func() time.Time

	// admit serializes put admission across keys. Two puts that check
	// the budget before either records its size would both pass and
	// overfill the cache; holding admit across check, eviction, and
	// insert makes the decision atomic.
	admit sync.Mutex

	mu    sync.RWMutex
	index map[string]indexMeta

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	sweeper   *sweeper
	closeOnce sync.Once
	closeErr  error
}

// Open creates (or re-attaches to) the cache namespace described by cfg.
// The durable store is scanned once to rebuild the in-memory index;
// records that fail to decode are purged during the scan.
func Open(cfg Config, opts ...Option) (*Cache, error) {
	cfg = cfg.withDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := zerolog.Nop()
	switch {
	case o.logger != nil:
		log = *o.logger
	case cfg.Logging:
		log = zerolog.New(os.Stderr).With().
			Timestamp().
			Str("component", "slicecache").
			Str("store", cfg.StoreName).
			Logger()
	}

	st := o.store
	if st == nil {
		var err error
		st, err = store.OpenBolt(cfg.Path, cfg.StoreName, cfg.SchemaVersion)
		if err != nil {
			return nil, fmt.Errorf("open default store: %w", err)
		}
	}
	if o.breaker != nil {
		st = store.WithBreaker(st, *o.breaker)
	}

	c := &Cache{
		cfg:     cfg,
		store:   st,
		quota:   quota.New(cfg.MaxCacheSizeBytes, o.hostQuota, o.hostMargin, log),
		locks:   keymutex.New(),
		log:     log,
		nowFunc: time.Now,
		index:   make(map[string]indexMeta),
	}
	if o.nowFunc != nil {
		c.nowFunc = o.nowFunc
	}
	if o.tracer != nil {
		c.tracer = o.tracer.Tracer("github.com/voxelkit/slicecache")
	}
	if o.hotBytes > 0 {
		tier, err := hot.NewTier(o.hotBytes)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("hot tier: %w", err)
		}
		c.hot = tier
	}

	if err := c.rebuildIndex(context.Background()); err != nil {
		c.closeQuiet()
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	if o.sweepEvery > 0 {
		c.sweeper = newSweeper(c, o.sweepEvery)
		go c.sweeper.run()
	}

	c.log.Debug().
		Int("entries", len(c.index)).
		Int64("bytes", c.quota.Current()).
		Msg("cache opened")
	return c, nil
}

// rebuildIndex scans the durable store, decoding every record to rebuild
// the in-memory index and quota accounting. Corrupt records are deleted
// on the spot.
func (c *Cache) rebuildIndex(ctx context.Context) error {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return err
	}

	var imu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			rec, ok, err := c.store.Get(gctx, key)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			e, err := entry.Decode(key, rec)
			if err != nil {
				c.log.Warn().Str("key", key).Err(err).Msg("purging corrupt record during index rebuild")
				return c.store.Delete(gctx, key)
			}
			imu.Lock()
			c.index[key] = indexMeta{
				sourceID:       e.SourceID,
				size:           e.SizeBytes(),
				createdAt:      e.CreatedAt,
				lastAccessedAt: e.LastAccessedAt,
			}
			imu.Unlock()
			c.quota.Record(e.SizeBytes())
			return nil
		})
	}
	return g.Wait()
}

// Get returns the cached slice for (sourceID, sliceIndex). The boolean
// reports a hit; expired and corrupt records count as misses and are
// removed. The returned entry is the caller's copy.
func (c *Cache) Get(ctx context.Context, sourceID string, sliceIndex int) (e *entry.Entry, ok bool, err error) {
	key, err := MakeKey(sourceID, sliceIndex)
	if err != nil {
		return nil, false, err
	}
	ctx, span := c.startSpan(ctx, "slicecache.Get", key)
	defer func() { endSpan(span, err) }()

	unlock := c.locks.Lock(key)
	defer unlock()

	now := c.nowFunc()

	c.mu.RLock()
	meta, live := c.index[key]
	c.mu.RUnlock()
	if !live {
		c.misses.Add(1)
		return nil, false, nil
	}

	if c.isExpired(meta.createdAt, now) {
		c.removeExpired(ctx, key)
		c.misses.Add(1)
		return nil, false, nil
	}

	// Hot tier first: a hit skips the store read and the decode.
	if c.hot != nil {
		if cached, hit := c.hot.Get(key); hit {
			return c.finishRead(ctx, key, cached, now)
		}
	}

	rec, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		// The index said live but the store disagrees; heal the
		// accounting and report a miss.
		c.log.Warn().Str("key", key).Msg("indexed entry missing from store")
		c.dropAccounting(key)
		c.misses.Add(1)
		return nil, false, nil
	}

	decoded, err := entry.Decode(key, rec)
	if err != nil {
		c.log.Warn().Str("key", key).Err(err).Msg("purging corrupt record")
		if derr := c.store.Delete(ctx, key); derr != nil {
			c.log.Warn().Str("key", key).Err(derr).Msg("failed to purge corrupt record")
		}
		c.dropAccounting(key)
		c.misses.Add(1)
		return nil, false, nil
	}

	return c.finishRead(ctx, key, decoded, now)
}

// finishRead stamps the access time, persists it so LRU ordering
// survives a restart, and hands the caller a copy. A failed write-back
// degrades eviction ordering, not correctness, so it is logged and
// swallowed.
func (c *Cache) finishRead(ctx context.Context, key string, e *entry.Entry, now time.Time) (*entry.Entry, bool, error) {
	touched := e.Clone()
	touched.LastAccessedAt = now

	if rec, err := entry.Encode(touched); err == nil {
		if err := c.store.Put(ctx, key, rec); err != nil {
			c.log.Warn().Str("key", key).Err(err).Msg("failed to persist access time")
		}
	}

	c.mu.Lock()
	meta, live := c.index[key]
	if live {
		meta.lastAccessedAt = now
		c.index[key] = meta
	}
	c.mu.Unlock()
	if !live {
		// The entry was removed while this read was in flight (Clear
		// does not take per-key locks). Drop the record the write-back
		// may have just resurrected.
		_ = c.store.Delete(ctx, key)
		if c.hot != nil {
			c.hot.Del(key)
		}
		c.misses.Add(1)
		return nil, false, nil
	}

	if c.hot != nil {
		c.hot.Set(touched)
	}
	c.hits.Add(1)
	return touched.Clone(), true, nil
}

// Put stores one decoded slice. The payload is copied; the caller keeps
// ownership of its buffer. When the write would exceed the budget the
// LRU eviction pass runs first (unless disabled, in which case the put
// fails with a quota error). An entry larger than the whole budget fails
// with an entry-too-large error and touches nothing.
func (c *Cache) Put(ctx context.Context, sourceID string, sliceIndex int, payload []byte, width, height int, format entry.PixelFormat, windowCenter, windowWidth float64, valueRange entry.ValueRange) (err error) {
	key, err := MakeKey(sourceID, sliceIndex)
	if err != nil {
		return err
	}
	ctx, span := c.startSpan(ctx, "slicecache.Put", key)
	defer func() { endSpan(span, err) }()

	e := &entry.Entry{
		Key:          key,
		SourceID:     sourceID,
		SliceIndex:   sliceIndex,
		Payload:      append([]byte(nil), payload...),
		Width:        width,
		Height:       height,
		PixelFormat:  format,
		WindowCenter: windowCenter,
		WindowWidth:  windowWidth,
		ValueRange:   valueRange,
	}
	if err := e.Validate(); err != nil {
		return err
	}

	// Lock order: admit, then the entry's key, then victim keys inside
	// the eviction pass. Readers and deleters never take admit, so a
	// held victim lock always drains.
	c.admit.Lock()
	defer c.admit.Unlock()

	unlock := c.locks.Lock(key)
	defer unlock()

	size := e.SizeBytes()
	if size > c.quota.Max() {
		return cacheerr.Newf(cacheerr.CodeEntryTooLarge,
			"entry of %d bytes exceeds the %d byte budget", size, c.quota.Max())
	}
	if c.quota.HostBlocked() {
		return cacheerr.New(cacheerr.CodeQuotaExceeded, "host storage usage past safety margin")
	}

	now := c.nowFunc()
	e.CreatedAt = now
	e.LastAccessedAt = now

	c.mu.RLock()
	old, replacing := c.index[key]
	effective := c.quota.Current()
	if replacing {
		effective -= old.size
	}
	var candidates []eviction.Candidate
	if effective+size > c.quota.Max() {
		candidates = make([]eviction.Candidate, 0, len(c.index))
		for k, m := range c.index {
			if k == key {
				continue
			}
			candidates = append(candidates, eviction.Candidate{
				Key:            k,
				SizeBytes:      m.size,
				LastAccessedAt: m.lastAccessedAt,
			})
		}
	}
	c.mu.RUnlock()

	if effective+size > c.quota.Max() {
		if c.cfg.NoAutoEviction {
			return cacheerr.Newf(cacheerr.CodeQuotaExceeded,
				"insert of %d bytes would exceed the %d byte budget and auto-eviction is disabled",
				size, c.quota.Max())
		}
		if err := c.evict(ctx, candidates, effective, size); err != nil {
			return err
		}
	}

	rec, err := entry.Encode(e)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, key, rec); err != nil {
		// Accounting was never incremented for this entry, so there is
		// nothing to roll back.
		return err
	}

	c.mu.Lock()
	prev, hadPrev := c.index[key]
	c.index[key] = indexMeta{
		sourceID:       sourceID,
		size:           size,
		createdAt:      now,
		lastAccessedAt: now,
	}
	c.mu.Unlock()

	delta := size
	if hadPrev {
		delta -= prev.size
	}
	c.quota.Record(delta)

	if c.hot != nil {
		c.hot.Set(e.Clone())
	}
	return nil
}

// evict runs the LRU plan and deletes the victims. A store failure
// mid-pass aborts the put; entries already deleted stay deleted, which
// under-fills the cache and is safe.
func (c *Cache) evict(ctx context.Context, candidates []eviction.Candidate, currentSize, requiredBytes int64) error {
	victims, err := eviction.Plan(candidates, currentSize, requiredBytes, c.quota.Max())
	if err != nil {
		return err
	}
	for _, v := range victims {
		if err := c.evictOne(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// evictOne removes one victim under its per-key lock so an in-flight
// read or delete of the same key cannot interleave with the removal.
// A victim a concurrent delete already removed counts as freed.
func (c *Cache) evictOne(ctx context.Context, v eviction.Candidate) error {
	unlock := c.locks.Lock(v.Key)
	defer unlock()

	c.mu.RLock()
	_, live := c.index[v.Key]
	c.mu.RUnlock()
	if !live {
		return nil
	}

	if err := c.store.Delete(ctx, v.Key); err != nil {
		return fmt.Errorf("evict %s: %w", v.Key, err)
	}
	c.dropAccounting(v.Key)
	c.evictions.Add(1)
	c.log.Debug().Str("key", v.Key).Int64("bytes", v.SizeBytes).Msg("evicted")
	return nil
}

// Delete removes one slice. Deleting an absent slice is a no-op.
func (c *Cache) Delete(ctx context.Context, sourceID string, sliceIndex int) (err error) {
	key, err := MakeKey(sourceID, sliceIndex)
	if err != nil {
		return err
	}
	ctx, span := c.startSpan(ctx, "slicecache.Delete", key)
	defer func() { endSpan(span, err) }()

	unlock := c.locks.Lock(key)
	defer unlock()

	c.mu.RLock()
	_, live := c.index[key]
	c.mu.RUnlock()
	if !live {
		return nil
	}

	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	c.dropAccounting(key)
	return nil
}

// DeleteBySource removes every slice of sourceID and returns how many
// were removed. Used when a study is discarded. A store failure aborts
// the pass; already-removed entries stay removed.
func (c *Cache) DeleteBySource(ctx context.Context, sourceID string) (removed int, err error) {
	if sourceID == "" {
		return 0, cacheerr.New(cacheerr.CodeInvalidArgument, "empty source id")
	}
	ctx, span := c.startSpan(ctx, "slicecache.DeleteBySource", sourceID)
	defer func() { endSpan(span, err) }()

	c.mu.RLock()
	keys := make([]string, 0, len(c.index))
	for k, m := range c.index {
		if m.sourceID == sourceID {
			keys = append(keys, k)
		}
	}
	c.mu.RUnlock()

	for _, key := range keys {
		if err := c.deleteKey(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	c.log.Debug().Str("source", sourceID).Int("removed", removed).Msg("source discarded")
	return removed, nil
}

// deleteKey removes one key under its per-key lock, re-checking liveness
// in case a concurrent operation already removed it.
func (c *Cache) deleteKey(ctx context.Context, key string) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	c.mu.RLock()
	_, live := c.index[key]
	c.mu.RUnlock()
	if !live {
		return nil
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	c.dropAccounting(key)
	return nil
}

// Clear removes every entry, resets quota accounting to zero, and resets
// the statistics counters.
func (c *Cache) Clear(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "slicecache.Clear", "")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.index = make(map[string]indexMeta)
	c.quota.Reset()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	if c.hot != nil {
		c.hot.Clear()
	}
	c.log.Debug().Msg("cache cleared")
	return nil
}

// Stats returns an O(1) snapshot of the cache counters and occupancy.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	count := len(c.index)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Hits:             hits,
		Misses:           misses,
		Evictions:        c.evictions.Load(),
		CurrentSizeBytes: c.quota.Current(),
		EntryCount:       count,
		HitRate:          hitRate(hits, misses),
	}
}

// Close stops the background sweep (if any) and releases the store. Safe
// to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		if c.sweeper != nil {
			c.sweeper.close()
		}
		if c.hot != nil {
			c.hot.Close()
		}
		c.closeErr = c.store.Close()
	})
	return c.closeErr
}

// closeQuiet tears down without recording the error; used on Open
// failure paths.
func (c *Cache) closeQuiet() {
	if c.hot != nil {
		c.hot.Close()
	}
	_ = c.store.Close()
}

// isExpired reports whether an entry created at createdAt is past the
// configured expiration at time now.
func (c *Cache) isExpired(createdAt, now time.Time) bool {
	return createdAt.Add(c.cfg.Expiration).Before(now)
}

// removeExpired physically removes a logically expired entry. If the
// store delete fails the accounting is kept so the entry stays visible
// to a future removal attempt.
func (c *Cache) removeExpired(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.Warn().Str("key", key).Err(err).Msg("failed to remove expired entry")
		return
	}
	c.dropAccounting(key)
	c.log.Debug().Str("key", key).Msg("expired entry removed")
}

// dropAccounting removes key from the index, credits the quota tracker,
// and invalidates the hot tier.
func (c *Cache) dropAccounting(key string) {
	c.mu.Lock()
	meta, live := c.index[key]
	if live {
		delete(c.index, key)
	}
	c.mu.Unlock()
	if live {
		c.quota.Record(-meta.size)
	}
	if c.hot != nil {
		c.hot.Del(key)
	}
}

// startSpan opens a tracing span when a tracer is configured.
func (c *Cache) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, nil
	}
	return c.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.String("cache.key", key)))
}

// endSpan records the outcome and closes the span, tolerating nil.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
