package slicecache

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxelkit/slicecache/cacheerr"
	"github.com/voxelkit/slicecache/entry"
	"github.com/voxelkit/slicecache/store"
)

// fakeClock is a mutable time source injected via withClock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func openTestCache(t *testing.T, cfg Config, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append(opts, WithStore(store.NewMemory()), withClock(clock.now))
	c, err := Open(cfg, opts...)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

// mustPut stores a grayscale slice of n payload bytes.
func mustPut(t *testing.T, c *Cache, sourceID string, sliceIndex, n int) {
	t.Helper()
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i)
	}
	err := c.Put(context.Background(), sourceID, sliceIndex, payload, n, 1, entry.Uint8,
		0, 0, entry.ValueRange{})
	if err != nil {
		t.Fatalf("put %s:%d (%d bytes): %v", sourceID, sliceIndex, n, err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c, _ := openTestCache(t, Config{})

	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	err := c.Put(context.Background(), "study-1", 3, payload, 4, 2, entry.Int16,
		40, 400, entry.ValueRange{Min: -1024, Max: 3071})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	e, ok, err := c.Get(context.Background(), "study-1", 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if !bytes.Equal(e.Payload, payload) {
		t.Fatalf("payload mismatch: got %v", e.Payload)
	}
	if e.SourceID != "study-1" || e.SliceIndex != 3 {
		t.Fatalf("identity = %s:%d", e.SourceID, e.SliceIndex)
	}
	if e.Width != 4 || e.Height != 2 || e.PixelFormat != entry.Int16 {
		t.Fatalf("geometry = %dx%d %s", e.Width, e.Height, e.PixelFormat)
	}
	if e.WindowCenter != 40 || e.WindowWidth != 400 {
		t.Fatalf("window = %v/%v", e.WindowCenter, e.WindowWidth)
	}
	if e.ValueRange.Min != -1024 || e.ValueRange.Max != 3071 {
		t.Fatalf("value range = %+v", e.ValueRange)
	}
}

func TestGetReturnsCallerCopy(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	mustPut(t, c, "study-1", 0, 8)

	e, _, err := c.Get(context.Background(), "study-1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	e.Payload[0] = 0xff

	again, _, err := c.Get(context.Background(), "study-1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Payload[0] == 0xff {
		t.Fatal("caller mutation leaked into the cached payload")
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	_, ok, err := c.Get(context.Background(), "nobody", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected a miss")
	}
	if st := c.Stats(); st.Misses != 1 {
		t.Fatalf("misses = %d, want 1", st.Misses)
	}
}

func TestInvalidArguments(t *testing.T) {
	c, _ := openTestCache(t, Config{})

	if _, _, err := c.Get(context.Background(), "", 0); !cacheerr.IsInvalidArgument(err) {
		t.Fatalf("get empty source: %v", err)
	}
	if err := c.Put(context.Background(), "s", -1, []byte{1}, 1, 1, entry.Uint8, 0, 0, entry.ValueRange{}); !cacheerr.IsInvalidArgument(err) {
		t.Fatalf("put negative index: %v", err)
	}
	if _, err := c.DeleteBySource(context.Background(), ""); !cacheerr.IsInvalidArgument(err) {
		t.Fatalf("deleteBySource empty source: %v", err)
	}
}

func TestPutRejectsMismatchedPayload(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	// 3 bytes cannot be a 2x2 uint8 slice.
	err := c.Put(context.Background(), "study-1", 0, []byte{1, 2, 3}, 2, 2, entry.Uint8, 0, 0, entry.ValueRange{})
	if cacheerr.CodeOf(err) != cacheerr.CodeSerialization {
		t.Fatalf("expected serialization error, got %v", err)
	}
}

func TestSizeAccounting(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	mustPut(t, c, "study-1", 0, 1000)
	mustPut(t, c, "study-1", 1, 2500)
	mustPut(t, c, "study-2", 0, 400)

	st := c.Stats()
	if st.EntryCount != 3 {
		t.Fatalf("entries = %d, want 3", st.EntryCount)
	}
	if st.CurrentSizeBytes != 3900 {
		t.Fatalf("size = %d, want 3900", st.CurrentSizeBytes)
	}
}

func TestReplaceSameKey(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	mustPut(t, c, "study-1", 0, 100)
	mustPut(t, c, "study-1", 0, 300)

	st := c.Stats()
	if st.EntryCount != 1 {
		t.Fatalf("entries = %d, want 1", st.EntryCount)
	}
	if st.CurrentSizeBytes != 300 {
		t.Fatalf("size = %d, want 300", st.CurrentSizeBytes)
	}
}

func TestReplaceExcludesOwnSizeFromBudgetCheck(t *testing.T) {
	c, _ := openTestCache(t, Config{MaxCacheSizeBytes: 400, NoAutoEviction: true})
	mustPut(t, c, "study-1", 0, 300)
	// 350 replaces the existing 300; the check sees 350, not 650.
	mustPut(t, c, "study-1", 0, 350)

	if st := c.Stats(); st.CurrentSizeBytes != 350 {
		t.Fatalf("size = %d, want 350", st.CurrentSizeBytes)
	}
}

func TestEvictionOrderIsLeastRecentlyAccessed(t *testing.T) {
	c, clock := openTestCache(t, Config{MaxCacheSizeBytes: 500000})

	mustPut(t, c, "study-1", 0, 100000) // a
	clock.advance(time.Minute)
	mustPut(t, c, "study-1", 1, 200000) // b
	clock.advance(time.Minute)
	mustPut(t, c, "study-1", 2, 150000) // c
	clock.advance(time.Minute)

	// Touch b so the access order becomes a < c < b.
	if _, ok, err := c.Get(context.Background(), "study-1", 1); err != nil || !ok {
		t.Fatalf("get b: ok=%v err=%v", ok, err)
	}
	clock.advance(time.Minute)

	// 200000 more does not fit; a alone frees too little, so a and c go.
	mustPut(t, c, "study-2", 0, 200000)

	if _, ok, _ := c.Get(context.Background(), "study-1", 0); ok {
		t.Fatal("a should have been evicted")
	}
	if _, ok, _ := c.Get(context.Background(), "study-1", 2); ok {
		t.Fatal("c should have been evicted")
	}
	if _, ok, err := c.Get(context.Background(), "study-1", 1); err != nil || !ok {
		t.Fatalf("b should have survived: ok=%v err=%v", ok, err)
	}
	if _, ok, err := c.Get(context.Background(), "study-2", 0); err != nil || !ok {
		t.Fatalf("the new entry should be present: ok=%v err=%v", ok, err)
	}

	st := c.Stats()
	if st.Evictions != 2 {
		t.Fatalf("evictions = %d, want 2", st.Evictions)
	}
	if st.CurrentSizeBytes != 400000 {
		t.Fatalf("size = %d, want 400000", st.CurrentSizeBytes)
	}
}

func TestEntryTooLargeLeavesCacheUntouched(t *testing.T) {
	c, _ := openTestCache(t, Config{MaxCacheSizeBytes: 1000})
	mustPut(t, c, "study-1", 0, 600)

	err := c.Put(context.Background(), "study-2", 0, make([]byte, 2000), 2000, 1, entry.Uint8, 0, 0, entry.ValueRange{})
	if !cacheerr.IsEntryTooLarge(err) {
		t.Fatalf("expected entry too large, got %v", err)
	}

	st := c.Stats()
	if st.EntryCount != 1 || st.CurrentSizeBytes != 600 || st.Evictions != 0 {
		t.Fatalf("cache was touched: %+v", st)
	}
}

func TestNoAutoEviction(t *testing.T) {
	c, _ := openTestCache(t, Config{MaxCacheSizeBytes: 1000, NoAutoEviction: true})
	mustPut(t, c, "study-1", 0, 800)

	err := c.Put(context.Background(), "study-1", 1, make([]byte, 400), 400, 1, entry.Uint8, 0, 0, entry.ValueRange{})
	if !cacheerr.IsQuotaExceeded(err) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if st := c.Stats(); st.EntryCount != 1 || st.CurrentSizeBytes != 800 {
		t.Fatalf("cache was touched: %+v", st)
	}
}

func TestDelete(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	mustPut(t, c, "study-1", 0, 100)

	if err := c.Delete(context.Background(), "study-1", 0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(context.Background(), "study-1", 0); ok {
		t.Fatal("entry still present after delete")
	}
	if st := c.Stats(); st.CurrentSizeBytes != 0 {
		t.Fatalf("size = %d, want 0", st.CurrentSizeBytes)
	}

	// Deleting an absent slice is a no-op.
	if err := c.Delete(context.Background(), "study-1", 0); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDeleteBySource(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	mustPut(t, c, "study-1", 0, 100)
	mustPut(t, c, "study-1", 1, 100)
	mustPut(t, c, "study-1", 2, 100)
	mustPut(t, c, "study-2", 0, 100)
	mustPut(t, c, "study-2", 1, 100)

	removed, err := c.DeleteBySource(context.Background(), "study-1")
	if err != nil {
		t.Fatalf("deleteBySource: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}

	st := c.Stats()
	if st.EntryCount != 2 || st.CurrentSizeBytes != 200 {
		t.Fatalf("survivors wrong: %+v", st)
	}
	if _, ok, _ := c.Get(context.Background(), "study-2", 0); !ok {
		t.Fatal("unrelated source was removed")
	}
}

func TestClearResetsEverything(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	mustPut(t, c, "study-1", 0, 100)
	_, _, _ = c.Get(context.Background(), "study-1", 0)
	_, _, _ = c.Get(context.Background(), "study-9", 0)

	if err := c.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}

	st := c.Stats()
	if st.EntryCount != 0 || st.CurrentSizeBytes != 0 {
		t.Fatalf("occupancy not reset: %+v", st)
	}
	if st.Hits != 0 || st.Misses != 0 || st.Evictions != 0 || st.HitRate != 0 {
		t.Fatalf("counters not reset: %+v", st)
	}
}

func TestExpirationIsLazy(t *testing.T) {
	c, clock := openTestCache(t, Config{})
	mustPut(t, c, "study-1", 0, 100)

	// At exactly the expiration boundary the entry is still readable.
	clock.advance(DefaultExpiration)
	if _, ok, err := c.Get(context.Background(), "study-1", 0); err != nil || !ok {
		t.Fatalf("boundary read: ok=%v err=%v", ok, err)
	}

	clock.advance(time.Second)
	_, ok, err := c.Get(context.Background(), "study-1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expired entry served")
	}

	// The lazy removal reclaimed the space.
	st := c.Stats()
	if st.EntryCount != 0 || st.CurrentSizeBytes != 0 {
		t.Fatalf("expired entry still accounted: %+v", st)
	}
}

func TestAccessDoesNotExtendExpiry(t *testing.T) {
	c, clock := openTestCache(t, Config{Expiration: time.Hour})
	mustPut(t, c, "study-1", 0, 100)

	clock.advance(50 * time.Minute)
	if _, ok, _ := c.Get(context.Background(), "study-1", 0); !ok {
		t.Fatal("expected a hit before expiry")
	}

	// The read above did not push creation time forward.
	clock.advance(20 * time.Minute)
	if _, ok, _ := c.Get(context.Background(), "study-1", 0); ok {
		t.Fatal("access extended the entry's lifetime")
	}
}

func TestHitRate(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	if st := c.Stats(); st.HitRate != 0 {
		t.Fatalf("initial hit rate = %v, want 0", st.HitRate)
	}

	mustPut(t, c, "study-1", 0, 10)
	for n := 0; n < 8; n++ {
		if _, ok, _ := c.Get(context.Background(), "study-1", 0); !ok {
			t.Fatal("expected a hit")
		}
	}
	for n := 0; n < 2; n++ {
		_, _, _ = c.Get(context.Background(), "study-1", 99)
	}

	st := c.Stats()
	if st.Hits != 8 || st.Misses != 2 {
		t.Fatalf("hits/misses = %d/%d", st.Hits, st.Misses)
	}
	if st.HitRate != 0.8 {
		t.Fatalf("hit rate = %v, want 0.8", st.HitRate)
	}
}

func TestReopenRestoresIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	cfg := Config{Path: path}

	c, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustPut(t, c, "study-1", 0, 100)
	mustPut(t, c, "study-1", 1, 250)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()

	st := c.Stats()
	if st.EntryCount != 2 || st.CurrentSizeBytes != 350 {
		t.Fatalf("index not restored: %+v", st)
	}
	if _, ok, err := c.Get(context.Background(), "study-1", 1); err != nil || !ok {
		t.Fatalf("entry lost across reopen: ok=%v err=%v", ok, err)
	}
}

func TestSchemaVersionChangeClearsNamespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(Config{Path: path, SchemaVersion: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustPut(t, c, "study-1", 0, 100)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c, err = Open(Config{Path: path, SchemaVersion: 2})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()

	if st := c.Stats(); st.EntryCount != 0 || st.CurrentSizeBytes != 0 {
		t.Fatalf("namespace survived a schema change: %+v", st)
	}
}

func TestHotTierServesRepeatReads(t *testing.T) {
	c, _ := openTestCache(t, Config{}, WithHotTier(1<<20))
	mustPut(t, c, "study-1", 0, 64)

	for n := 0; n < 3; n++ {
		e, ok, err := c.Get(context.Background(), "study-1", 0)
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if len(e.Payload) != 64 {
			t.Fatalf("payload length = %d", len(e.Payload))
		}
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c, clock := openTestCache(t, Config{Expiration: time.Hour},
		WithSweepInterval(5*time.Millisecond))
	mustPut(t, c, "study-1", 0, 100)
	mustPut(t, c, "study-1", 1, 100)

	clock.advance(2 * time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := c.Stats(); st.EntryCount == 0 && st.CurrentSizeBytes == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sweep never removed the expired entries: %+v", c.Stats())
}

func TestConcurrentMixedOps(t *testing.T) {
	c, _ := openTestCache(t, Config{MaxCacheSizeBytes: 1 << 20})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				idx := (w*50 + i) % 20
				payload := make([]byte, 256)
				if err := c.Put(context.Background(), "study-1", idx, payload, 256, 1, entry.Uint8, 0, 0, entry.ValueRange{}); err != nil {
					t.Errorf("put: %v", err)
					return
				}
				if _, _, err := c.Get(context.Background(), "study-1", idx); err != nil {
					t.Errorf("get: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	st := c.Stats()
	if st.EntryCount != 20 {
		t.Fatalf("entries = %d, want 20", st.EntryCount)
	}
	if st.CurrentSizeBytes != 20*256 {
		t.Fatalf("size = %d, want %d", st.CurrentSizeBytes, 20*256)
	}
}

// slowPutStore delays durable writes so concurrent puts overlap.
type slowPutStore struct {
	*store.Memory
	delay time.Duration
}

func (s *slowPutStore) Put(ctx context.Context, key string, rec []byte) error {
	time.Sleep(s.delay)
	return s.Memory.Put(ctx, key, rec)
}

func TestConcurrentPutsRespectBudget(t *testing.T) {
	c, err := Open(Config{MaxCacheSizeBytes: 100},
		WithStore(&slowPutStore{Memory: store.NewMemory(), delay: 30 * time.Millisecond}))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	// Two 60-byte slices into a 100-byte budget: if both admission
	// checks read the size before either insert records it, both pass
	// and the cache overfills.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := make([]byte, 60)
			if err := c.Put(context.Background(), "study-1", i, payload, 60, 1, entry.Uint8, 0, 0, entry.ValueRange{}); err != nil {
				t.Errorf("put %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	st := c.Stats()
	if st.CurrentSizeBytes > 100 {
		t.Fatalf("budget exceeded after concurrent puts: %d > 100", st.CurrentSizeBytes)
	}
	if st.EntryCount != 1 || st.Evictions != 1 {
		t.Fatalf("second put should have evicted the first: %+v", st)
	}
}

// gatedReadStore blocks the first durable read of one key until released.
type gatedReadStore struct {
	*store.Memory
	gateKey string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedReadStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == g.gateKey {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.Memory.Get(ctx, key)
}

func TestEvictionWaitsForInFlightRead(t *testing.T) {
	gs := &gatedReadStore{
		Memory:  store.NewMemory(),
		gateKey: "study-1:0",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, err := Open(Config{MaxCacheSizeBytes: 100}, WithStore(gs))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	mustPut(t, c, "study-1", 0, 60)

	type readResult struct {
		ok  bool
		err error
	}
	got := make(chan readResult, 1)
	go func() {
		_, ok, err := c.Get(context.Background(), "study-1", 0)
		got <- readResult{ok: ok, err: err}
	}()
	<-gs.entered

	// This put must evict study-1:0 and therefore wait for the read
	// holding its key lock.
	done := make(chan error, 1)
	go func() {
		payload := make([]byte, 60)
		done <- c.Put(context.Background(), "study-2", 0, payload, 60, 1, entry.Uint8, 0, 0, entry.ValueRange{})
	}()
	select {
	case err := <-done:
		t.Fatalf("put finished while the victim read was in flight (err=%v)", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(gs.release)

	r := <-got
	if r.err != nil || !r.ok {
		t.Fatalf("in-flight read of the victim: ok=%v err=%v", r.ok, r.err)
	}
	if err := <-done; err != nil {
		t.Fatalf("put: %v", err)
	}

	st := c.Stats()
	if st.EntryCount != 1 || st.CurrentSizeBytes != 60 || st.Evictions != 1 {
		t.Fatalf("victim not evicted after the read finished: %+v", st)
	}
}

// faultStore fails durable writes on demand.
type faultStore struct {
	*store.Memory
	failPuts atomic.Bool
}

func (s *faultStore) Put(ctx context.Context, key string, rec []byte) error {
	if s.failPuts.Load() {
		return cacheerr.New(cacheerr.CodeStorageUnavailable, "write failed")
	}
	return s.Memory.Put(ctx, key, rec)
}

func TestFailedStoreWriteLeavesAccountingUntouched(t *testing.T) {
	fs := &faultStore{Memory: store.NewMemory()}
	c, err := Open(Config{MaxCacheSizeBytes: 1 << 20}, WithStore(fs))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	mustPut(t, c, "study-1", 0, 100)
	fs.failPuts.Store(true)

	err = c.Put(context.Background(), "study-1", 1, make([]byte, 50), 50, 1, entry.Uint8, 0, 0, entry.ValueRange{})
	if !cacheerr.IsStorageUnavailable(err) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if st := c.Stats(); st.EntryCount != 1 || st.CurrentSizeBytes != 100 {
		t.Fatalf("accounting changed after a failed insert: %+v", st)
	}

	// A failed replacement keeps the old entry and its accounting.
	err = c.Put(context.Background(), "study-1", 0, make([]byte, 200), 200, 1, entry.Uint8, 0, 0, entry.ValueRange{})
	if !cacheerr.IsStorageUnavailable(err) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if st := c.Stats(); st.EntryCount != 1 || st.CurrentSizeBytes != 100 {
		t.Fatalf("accounting changed after a failed replacement: %+v", st)
	}

	fs.failPuts.Store(false)
	e, ok, err := c.Get(context.Background(), "study-1", 0)
	if err != nil || !ok {
		t.Fatalf("existing entry lost: ok=%v err=%v", ok, err)
	}
	if len(e.Payload) != 100 {
		t.Fatalf("payload is %d bytes, want the original 100", len(e.Payload))
	}
}

func TestCorruptRecordOnGetIsPurged(t *testing.T) {
	mem := store.NewMemory()
	c, err := Open(Config{}, WithStore(mem))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()

	mustPut(t, c, "study-1", 0, 100)

	// Scribble over the durable record behind the engine's back.
	if err := mem.Put(context.Background(), "study-1:0", []byte("not a slice record")); err != nil {
		t.Fatalf("corrupt record: %v", err)
	}

	_, ok, err := c.Get(context.Background(), "study-1", 0)
	if err != nil {
		t.Fatalf("a corrupt record must resolve as a miss, got error: %v", err)
	}
	if ok {
		t.Fatal("corrupt record served as a hit")
	}

	if _, found, _ := mem.Get(context.Background(), "study-1:0"); found {
		t.Fatal("corrupt record left in the store")
	}
	st := c.Stats()
	if st.EntryCount != 0 || st.CurrentSizeBytes != 0 {
		t.Fatalf("accounting not healed after the purge: %+v", st)
	}
	if st.Misses != 1 {
		t.Fatalf("misses = %d, want 1", st.Misses)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _ := openTestCache(t, Config{})
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
