package memo

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

type callFramesContextKey struct{}

type suppressWarningsContextKey struct{}

// frame is one memoized computation on the current call chain. Frames are
// immutable and linked to their parent, so a context handed to goroutines
// spawned by the computation can be read without locking.
type frame struct {
	name   string
	parent *frame
	depth  int
}

// CallStack tracks memoized computations in flight.
//
// Go has no thread local storage; the per call chain stack travels on the
// context.Context passed to the memoized function, so concurrent callers with
// their own contexts never observe each other's frames. In addition the
// stack keeps a process wide count of in-flight computations per function.
type CallStack struct {
	inFlight *xsync.MapOf[string, *atomic.Int64]
	logger   *zap.Logger
}

// NewCallStack creates an empty call stack.
func NewCallStack(logger *zap.Logger) *CallStack {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallStack{
		inFlight: xsync.NewMapOf[string, *atomic.Int64](),
		logger:   logger,
	}
}

// Push records that the memoized function name starts computing on the
// call chain of ctx. The returned pop func must be deferred by the caller so
// the frame is released on every exit path, panics included.
func (s *CallStack) Push(ctx context.Context, name string) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}

	parent := frameFromContext(ctx)
	f := &frame{name: name, parent: parent, depth: 1}
	if parent != nil {
		f.depth = parent.depth + 1
	}

	counter, _ := s.inFlight.LoadOrCompute(name, func() *atomic.Int64 {
		return new(atomic.Int64)
	})
	counter.Add(1)

	var popped atomic.Bool
	pop := func() {
		if popped.CompareAndSwap(false, true) {
			counter.Add(-1)
		}
	}

	return context.WithValue(ctx, callFramesContextKey{}, f), pop
}

// Depth returns the number of memoized computations on the call chain of ctx.
func (s *CallStack) Depth(ctx context.Context) int {
	if f := frameFromContext(ctx); f != nil {
		return f.depth
	}
	return 0
}

// IsNested reports whether a memoized computation runs inside another one.
func (s *CallStack) IsNested(ctx context.Context) bool {
	return s.Depth(ctx) > 1
}

// Frames returns the function names on the call chain, outermost first.
func (s *CallStack) Frames(ctx context.Context) []string {
	f := frameFromContext(ctx)
	if f == nil {
		return nil
	}
	names := make([]string, f.depth)
	for ; f != nil; f = f.parent {
		names[f.depth-1] = f.name
	}
	return names
}

// InFlight returns how many computations of name are running process wide.
func (s *CallStack) InFlight(name string) int {
	if counter, ok := s.inFlight.Load(name); ok {
		return int(counter.Load())
	}
	return 0
}

// SuppressWarnings returns a context under which Warn stays silent.
// Suppression nests: every call adds one level.
func (s *CallStack) SuppressWarnings(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, suppressWarningsContextKey{}, suppressionLevel(ctx)+1)
}

// WarningsSuppressed reports whether Warn is silenced on ctx.
func (s *CallStack) WarningsSuppressed(ctx context.Context) bool {
	return suppressionLevel(ctx) > 0
}

// Warn is meant for collaborators performing side effects (rendering,
// writes, notifications) from inside a memoized function: on a cache hit the
// function body is skipped and those effects do not replay. The warning is
// only emitted inside a memoized computation, and not when suppressed.
func (s *CallStack) Warn(ctx context.Context, msg string, fields ...zap.Field) bool {
	f := frameFromContext(ctx)
	if f == nil || s.WarningsSuppressed(ctx) {
		return false
	}

	fields = append(fields,
		zap.String("function", f.name),
		zap.Strings("stack", s.Frames(ctx)),
	)
	s.logger.Warn(msg, fields...)
	return true
}

func frameFromContext(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(callFramesContextKey{}).(*frame)
	return f
}

func suppressionLevel(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	level, _ := ctx.Value(suppressWarningsContextKey{}).(int)
	return level
}
