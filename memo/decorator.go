package memo

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-memo/cache"
	"github.com/goliatone/go-memo/internal/cacheinfra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ComputeFn is the signature of a function memoized with Memoize.
type ComputeFn[R any] func(ctx context.Context, args ...any) (R, error)

// Func decorates a function with memoization. Calls with value-equal
// arguments are served from the cache; mutating a returned value never
// affects later calls.
type Func[R any] struct {
	name     string
	fn       ComputeFn[R]
	config   cache.Config
	clock    cache.Clock
	registry *Registry
	keys     cache.KeyBuilder
	codec    cacheinfra.Codec
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Memoize wraps fn. Options are validated immediately: an invalid
// configuration fails here, not on the first call.
func Memoize[R any](fn ComputeFn[R], opts ...Option) (*Func[R], error) {
	if fn == nil {
		return nil, &cache.InvalidConfigurationError{Field: "fn", Message: "cannot be nil"}
	}
	return newFunc[R](fn, fn, opts)
}

// newFunc builds a Func whose identity is derived from target, the
// function value the caller handed in before any adaptation.
func newFunc[R any](target any, fn ComputeFn[R], opts []Option) (*Func[R], error) {
	s := newSettings(opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	name := s.name
	if name == "" {
		name = funcName(target)
	}
	if name == "" {
		return nil, &cache.InvalidConfigurationError{Field: "Name", Message: "cannot derive function identity"}
	}

	return &Func[R]{
		name:     name,
		fn:       fn,
		config:   s.config,
		clock:    s.clock,
		registry: s.registry,
		keys:     s.keys,
		logger:   s.logger,
		tracer:   s.tracer,
	}, nil
}

// Name returns the identity the function is cached under.
func (f *Func[R]) Name() string { return f.name }

// Config returns the cache configuration.
func (f *Func[R]) Config() cache.Config { return f.config }

// Call returns the cached result for args, computing and storing it on a miss.
// An entry computed at t0 is served until t0+TTL and recomputed from then on.
// Every call, miss or hit, returns a value decoded from the stored blob.
//
// Errors returned by the wrapped function propagate unchanged and are not
// cached. Unhashable arguments fail with cache.ErrUnserializableArgument and
// corrupt persisted entries with cache.ErrCacheRead.
func (f *Func[R]) Call(ctx context.Context, args ...any) (R, error) {
	var zero R
	if ctx == nil {
		ctx = context.Background()
	}

	key, err := f.keys.BuildKey(f.name, args...)
	if err != nil {
		return zero, err
	}

	fc := f.registry.Register(f.name, f.config, f.clock)

	blob, ok, err := fc.lookup(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		var out R
		if err := f.codec.Decode(blob, &out); err != nil {
			var readErr *cache.ReadError
			if errors.As(err, &readErr) && readErr.Path == "" && fc.disk != nil {
				readErr.Path = fc.disk.Path(key)
			}
			return zero, err
		}
		return out, nil
	}

	result, err := f.compute(ctx, key, args)
	if err != nil {
		return zero, err
	}

	blob, err = f.codec.Encode(result)
	if err != nil {
		return zero, err
	}

	// Hand out the decoded blob, not result, so a miss returns exactly what
	// later hits will.
	var out R
	if err := f.codec.Decode(blob, &out); err != nil {
		return zero, fmt.Errorf("%w: %v", cache.ErrUnserializableValue, errors.Unwrap(err))
	}
	fc.store(ctx, key, blob)

	return out, nil
}

// compute runs the wrapped function under a call stack frame and a span.
func (f *Func[R]) compute(ctx context.Context, key cache.Key, args []any) (R, error) {
	stack := f.registry.CallStack()
	ctx, pop := stack.Push(ctx, f.name)
	defer pop()

	ctx, span := f.tracer.Start(ctx, "memo.compute", trace.WithAttributes(
		attribute.String("memo.function", f.name),
		attribute.String("memo.key", key.String()),
		attribute.Int("memo.depth", stack.Depth(ctx)),
	))
	defer span.End()

	// Nested computations run with side-effect warnings silenced.
	if stack.IsNested(ctx) {
		f.logger.Debug("computing nested memoized call",
			zap.String("function", f.name),
			zap.Strings("stack", stack.Frames(ctx)),
		)
		ctx = stack.SuppressWarnings(ctx)
	}

	result, err := f.fn(ctx, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// Clear removes every cached entry of this function, including its
// persisted files. Other functions are not affected.
func (f *Func[R]) Clear(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return f.registry.Clear(ctx, f.name)
}

// Func0 is a memoized function without arguments.
type Func0[R any] struct {
	inner *Func[R]
}

// Memoize0 wraps a function without arguments.
func Memoize0[R any](fn func(ctx context.Context) (R, error), opts ...Option) (*Func0[R], error) {
	if fn == nil {
		return nil, &cache.InvalidConfigurationError{Field: "fn", Message: "cannot be nil"}
	}
	inner, err := newFunc[R](fn, func(ctx context.Context, _ ...any) (R, error) {
		return fn(ctx)
	}, opts)
	if err != nil {
		return nil, err
	}
	return &Func0[R]{inner: inner}, nil
}

// Call returns the cached result.
func (f *Func0[R]) Call(ctx context.Context) (R, error) { return f.inner.Call(ctx) }

// Clear removes the cached result.
func (f *Func0[R]) Clear(ctx context.Context) error { return f.inner.Clear(ctx) }

// Name returns the identity the function is cached under.
func (f *Func0[R]) Name() string { return f.inner.Name() }

// Func1 is a memoized function of one argument.
type Func1[A, R any] struct {
	inner *Func[R]
}

// Memoize1 wraps a function of one argument.
func Memoize1[A, R any](fn func(ctx context.Context, a A) (R, error), opts ...Option) (*Func1[A, R], error) {
	if fn == nil {
		return nil, &cache.InvalidConfigurationError{Field: "fn", Message: "cannot be nil"}
	}
	inner, err := newFunc[R](fn, func(ctx context.Context, args ...any) (R, error) {
		return fn(ctx, argAs[A](args, 0))
	}, opts)
	if err != nil {
		return nil, err
	}
	return &Func1[A, R]{inner: inner}, nil
}

// Call returns the cached result for a.
func (f *Func1[A, R]) Call(ctx context.Context, a A) (R, error) { return f.inner.Call(ctx, a) }

// Clear removes every cached result.
func (f *Func1[A, R]) Clear(ctx context.Context) error { return f.inner.Clear(ctx) }

// Name returns the identity the function is cached under.
func (f *Func1[A, R]) Name() string { return f.inner.Name() }

// Func2 is a memoized function of two arguments.
type Func2[A, B, R any] struct {
	inner *Func[R]
}

// Memoize2 wraps a function of two arguments.
func Memoize2[A, B, R any](fn func(ctx context.Context, a A, b B) (R, error), opts ...Option) (*Func2[A, B, R], error) {
	if fn == nil {
		return nil, &cache.InvalidConfigurationError{Field: "fn", Message: "cannot be nil"}
	}
	inner, err := newFunc[R](fn, func(ctx context.Context, args ...any) (R, error) {
		return fn(ctx, argAs[A](args, 0), argAs[B](args, 1))
	}, opts)
	if err != nil {
		return nil, err
	}
	return &Func2[A, B, R]{inner: inner}, nil
}

// Call returns the cached result for (a, b).
func (f *Func2[A, B, R]) Call(ctx context.Context, a A, b B) (R, error) {
	return f.inner.Call(ctx, a, b)
}

// Clear removes every cached result.
func (f *Func2[A, B, R]) Clear(ctx context.Context) error { return f.inner.Clear(ctx) }

// Name returns the identity the function is cached under.
func (f *Func2[A, B, R]) Name() string { return f.inner.Name() }

// argAs returns args[i] as A; a nil interface yields the zero value.
func argAs[A any](args []any, i int) A {
	var zero A
	if i >= len(args) {
		return zero
	}
	v, ok := args[i].(A)
	if !ok {
		return zero
	}
	return v
}
