package di

import (
	"context"

	"github.com/goliatone/go-memo/cache"
	"github.com/goliatone/go-memo/memo"
	"go.uber.org/zap"
)

// Container provides dependency injection for memoization components.
// It owns a registry, the key builder shared by the functions it creates
// and the cache configuration they start from.
type Container struct {
	registry   *memo.Registry
	keyBuilder cache.KeyBuilder
	config     cache.Config
	logger     *zap.Logger
	cacheDir   string
}

// Option configures a Container.
type Option func(*Container)

// WithCacheDir sets the directory persisted entries are written to.
func WithCacheDir(dir string) Option {
	return func(c *Container) { c.cacheDir = dir }
}

// WithLogger sets the logger handed to the registry and every function.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithKeyBuilder replaces the default key builder.
func WithKeyBuilder(kb cache.KeyBuilder) Option {
	return func(c *Container) {
		if kb != nil {
			c.keyBuilder = kb
		}
	}
}

// NewContainer creates a new DI container with the provided cache configuration.
// The configuration is validated up front so every function created through
// the container starts from a valid baseline.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		keyBuilder: cache.NewDefaultKeyBuilder(),
		config:     config,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.registry = memo.NewRegistry(
		memo.WithCacheDir(c.cacheDir),
		memo.WithRegistryLogger(c.logger),
	)
	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Registry returns the registry every function of the container lives in.
func (c *Container) Registry() *memo.Registry {
	return c.registry
}

// KeyBuilder returns the key builder shared by the container's functions.
func (c *Container) KeyBuilder() cache.KeyBuilder {
	return c.keyBuilder
}

// Config returns a copy of the base cache configuration.
func (c *Container) Config() cache.Config {
	return c.config
}

// Collector returns a prometheus collector over the container's registry.
func (c *Container) Collector() *memo.Collector {
	return memo.NewCollector(c.registry)
}

// ClearAll drops every cached entry of the container, persisted ones included.
func (c *Container) ClearAll(ctx context.Context) error {
	return c.registry.ClearAll(ctx)
}

// options returns the defaults applied to every function of the container.
func (c *Container) options() []memo.Option {
	return []memo.Option{
		memo.WithConfig(c.config),
		memo.WithRegistry(c.registry),
		memo.WithKeyBuilder(c.keyBuilder),
		memo.WithLogger(c.logger),
	}
}

// NewMemoized memoizes fn inside the container. Options given by the caller
// are applied after the container defaults and win over them.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewMemoized[Report](container, buildReport, memo.WithTTL(time.Hour))
func NewMemoized[R any](container *Container, fn memo.ComputeFn[R], opts ...memo.Option) (*memo.Func[R], error) {
	return memo.Memoize[R](fn, append(container.options(), opts...)...)
}

// NewMemoized1 is NewMemoized for a function of one argument.
func NewMemoized1[A, R any](container *Container, fn func(ctx context.Context, a A) (R, error), opts ...memo.Option) (*memo.Func1[A, R], error) {
	return memo.Memoize1[A, R](fn, append(container.options(), opts...)...)
}
