package slicecache

import "time"

// Defaults applied by [Config.withDefaults] for zero-valued fields.
const (
	DefaultStoreName     = "slicecache"
	DefaultSchemaVersion = 1
	DefaultMaxCacheSize  = 50 << 20 // 50 MiB
	DefaultExpiration    = 24 * time.Hour
)

// Config holds the per-instance cache configuration. The zero value is
// usable: unset fields take the defaults above, auto-eviction is on, and
// logging is off.
type Config struct {
	// StoreName is the durable namespace the cache owns. Two caches with
	// different store names never see each other's entries.
	StoreName string

	// Path is the location of the bolt database file backing the default
	// store. Ignored when a store is supplied via [WithStore]. Defaults
	// to "<StoreName>.db".
	Path string

	// SchemaVersion is the record schema the cache expects. Opening a
	// namespace written with a different version clears it entirely
	// instead of migrating.
	SchemaVersion uint32

	// MaxCacheSizeBytes is the byte budget. After any completed put the
	// cache holds at most this many payload bytes. Lowering the budget on
	// an existing namespace does not evict retroactively; the next put
	// does.
	MaxCacheSizeBytes int64

	// Expiration is how long an entry stays readable after creation.
	// Expired entries are treated as absent and removed lazily on read.
	Expiration time.Duration

	// NoAutoEviction disables the LRU eviction pass: a put that would
	// exceed the budget fails with a quota error instead of evicting.
	NoAutoEviction bool

	// Logging enables the cache's structured log output. Off by default;
	// a specific logger can be supplied via [WithLogger].
	Logging bool
}

// withDefaults returns cfg with zero-valued fields replaced by defaults.
func (cfg Config) withDefaults() Config {
	if cfg.StoreName == "" {
		cfg.StoreName = DefaultStoreName
	}
	if cfg.Path == "" {
		cfg.Path = cfg.StoreName + ".db"
	}
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = DefaultSchemaVersion
	}
	if cfg.MaxCacheSizeBytes == 0 {
		cfg.MaxCacheSizeBytes = DefaultMaxCacheSize
	}
	if cfg.Expiration == 0 {
		cfg.Expiration = DefaultExpiration
	}
	return cfg
}
