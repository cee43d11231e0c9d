package slicecache

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxelkit/slicecache/quota"
	"github.com/voxelkit/slicecache/store"
)

// Option configures cross-cutting concerns of a Cache beyond the plain
// [Config] fields.
type Option func(*options)

type options struct {
	store      store.Store
	breaker    *store.BreakerConfig
	hotBytes   int64
	logger     *zerolog.Logger
	tracer     trace.TracerProvider
	hostQuota  quota.HostQuota
	hostMargin float64
	sweepEvery time.Duration
	nowFunc    func() time.Time
}

// WithStore backs the cache with s instead of the default bolt store.
// The store must already be namespaced and schema-checked; the cache
// takes ownership and closes it on Close.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithBreaker wraps the durable store in a circuit breaker so repeated
// storage failures fail fast instead of stalling every operation.
func WithBreaker(cfg store.BreakerConfig) Option {
	return func(o *options) { o.breaker = &cfg }
}

// WithHotTier adds an in-process ristretto tier of maxBytes holding
// decoded entries in front of the durable store.
func WithHotTier(maxBytes int64) Option {
	return func(o *options) { o.hotBytes = maxBytes }
}

// WithLogger routes the cache's structured logs to l and implies
// Config.Logging.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithTracerProvider enables OpenTelemetry spans around cache operations.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithHostQuota adds a best-effort host storage probe. Writes are
// rejected with a quota error while host usage exceeds margin (a
// fraction; 0 means the default of 0.9). The configured byte budget
// remains the primary contract.
func WithHostQuota(q quota.HostQuota, margin float64) Option {
	return func(o *options) {
		o.hostQuota = q
		o.hostMargin = margin
	}
}

// WithSweepInterval starts a background sweep that removes expired
// entries every interval. The sweep is a pure optimization; the read
// path's lazy expiry check stays authoritative either way.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) { o.sweepEvery = interval }
}

// withClock substitutes the time source. Tests use it to drive expiry
// and LRU ordering deterministically.
func withClock(now func() time.Time) Option {
	return func(o *options) { o.nowFunc = now }
}
