package memo

import (
	"time"

	"github.com/goliatone/go-memo/cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/goliatone/go-memo/memo"

type settings struct {
	config   cache.Config
	name     string
	clock    cache.Clock
	registry *Registry
	logger   *zap.Logger
	keys     cache.KeyBuilder
	tracer   trace.Tracer
}

func newSettings(opts []Option) settings {
	s := settings{config: cache.DefaultConfig()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.clock == nil {
		s.clock = cache.SystemClock{}
	}
	if s.registry == nil {
		s.registry = Default()
	}
	if s.logger == nil {
		s.logger = s.registry.logger
	}
	if s.keys == nil {
		s.keys = cache.NewDefaultKeyBuilder()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// Option configures a memoized function.
type Option func(*settings)

// WithTTL sets how long an entry stays valid. Zero keeps entries until cleared.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) { s.config.TTL = ttl }
}

// WithPersist selects the storage tiers: cache.PersistNone or cache.PersistDisk.
// Any other value is rejected when the function is memoized.
func WithPersist(persist cache.Persist) Option {
	return func(s *settings) { s.config.Persist = persist }
}

// WithMaxEntries bounds the number of entries kept in memory.
func WithMaxEntries(n int) Option {
	return func(s *settings) { s.config.MaxEntries = n }
}

// WithConfig replaces the whole cache configuration. Options applied after
// it still override individual fields.
func WithConfig(cfg cache.Config) Option {
	return func(s *settings) { s.config = cfg }
}

// WithName overrides the identity derived from the function value. Functions
// sharing a name share a cache.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithClock sets the time source used for TTL checks.
func WithClock(clock cache.Clock) Option {
	return func(s *settings) { s.clock = clock }
}

// WithRegistry registers the function in r instead of the default registry.
func WithRegistry(r *Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithLogger sets the logger. Defaults to the registry's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithKeyBuilder replaces the default key builder.
func WithKeyBuilder(kb cache.KeyBuilder) Option {
	return func(s *settings) { s.keys = kb }
}

// WithTracer sets the tracer used for compute spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) { s.tracer = tracer }
}
