// Package store provides the durable record store behind the slicecache
// engine plus the shipped backends: a bbolt file store (the default), a
// Redis store, and an in-process memory store for tests. A circuit
// breaker wrapper is available for flaky hosts.
//
// A Store is a flat namespace of opaque records keyed by the engine's
// cache keys. Backends track a schema version for the namespace; opening
// a namespace whose stored version differs wipes it rather than
// attempting migration.
package store

import "context"

// Store is the durable backend contract. All failures of the backing
// medium are surfaced as cacheerr.CodeStorageUnavailable errors; a plain
// miss is (nil, false, nil) from Get.
type Store interface {
	// Get returns the record stored under key. The boolean reports
	// presence.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores rec under key, replacing any existing record.
	Put(ctx context.Context, key string, rec []byte) error

	// Delete removes the record under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key currently present, in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every record in the namespace.
	Clear(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
