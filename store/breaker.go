package store

import (
	"context"
	"sync"
	"time"

	"github.com/voxelkit/slicecache/cacheerr"
)

// BreakerState represents the current circuit state of a [Breaker] store.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

// BreakerConfig holds the circuit breaker parameters.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive storage failures in
	// Closed state before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before transitioning
	// to HalfOpen.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successes required
	// in HalfOpen state to close the breaker again.
	HalfOpenMaxSuccess int
}

// Breaker wraps a Store with a minimal circuit breaker. While the circuit
// is open every operation fails fast with a storage-unavailable error
// instead of stalling the viewer on a broken disk or unreachable Redis.
//
// States:
//   - Closed: operations flow normally; failures are counted.
//   - Open: operations are blocked; after OpenTimeout the breaker
//     transitions to HalfOpen.
//   - HalfOpen: a limited number of probe operations are allowed through;
//     if all succeed the breaker closes, any failure reopens it.
type Breaker struct {
	inner Store

	mu  sync.Mutex
	cfg BreakerConfig

	state     BreakerState
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time // for testing; defaults to time.Now
}

// errCircuitOpen is allocated once; fail-fast rejections are hot.
var errCircuitOpen = cacheerr.New(cacheerr.CodeStorageUnavailable, "store circuit open")

// WithBreaker wraps inner with a circuit breaker using cfg.
func WithBreaker(inner Store, cfg BreakerConfig) *Breaker {
	return &Breaker{
		inner:   inner,
		cfg:     cfg,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// State returns the current circuit state. In Open state it may
// auto-transition to HalfOpen if the timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return b.successes < b.cfg.HalfOpenMaxSuccess
	default: // Open
		return false
	}
}

func (b *Breaker) record(err error) {
	if err != nil && !cacheerr.IsStorageUnavailable(err) {
		// Only failures of the storage medium count against the circuit.
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case Closed:
			b.failures = 0
		case HalfOpen:
			b.successes++
			if b.successes >= b.cfg.HalfOpenMaxSuccess {
				b.state = Closed
				b.failures = 0
				b.successes = 0
			}
		}
		return
	}

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

// trip moves to Open. Caller holds b.mu.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.nowFunc()
	b.failures = 0
	b.successes = 0
}

// checkOpenTimeout transitions Open→HalfOpen when the timeout has
// elapsed. Caller holds b.mu.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

// Get forwards to the inner store when the circuit allows it.
func (b *Breaker) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !b.allow() {
		return nil, false, errCircuitOpen
	}
	rec, ok, err := b.inner.Get(ctx, key)
	b.record(err)
	return rec, ok, err
}

// Put forwards to the inner store when the circuit allows it.
func (b *Breaker) Put(ctx context.Context, key string, rec []byte) error {
	if !b.allow() {
		return errCircuitOpen
	}
	err := b.inner.Put(ctx, key, rec)
	b.record(err)
	return err
}

// Delete forwards to the inner store when the circuit allows it.
func (b *Breaker) Delete(ctx context.Context, key string) error {
	if !b.allow() {
		return errCircuitOpen
	}
	err := b.inner.Delete(ctx, key)
	b.record(err)
	return err
}

// Keys forwards to the inner store when the circuit allows it.
func (b *Breaker) Keys(ctx context.Context) ([]string, error) {
	if !b.allow() {
		return nil, errCircuitOpen
	}
	keys, err := b.inner.Keys(ctx)
	b.record(err)
	return keys, err
}

// Clear forwards to the inner store when the circuit allows it.
func (b *Breaker) Clear(ctx context.Context) error {
	if !b.allow() {
		return errCircuitOpen
	}
	err := b.inner.Clear(ctx)
	b.record(err)
	return err
}

// Close closes the inner store regardless of circuit state.
func (b *Breaker) Close() error {
	return b.inner.Close()
}
