package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/concoro-it/concoro/internal/logging"
)

// DefaultStaleAfter bounds how long a pending execution may be joined.
const DefaultStaleAfter = 30 * time.Second

var (
	// ErrPanicked wraps a panic recovered from a shared execution.
	ErrPanicked = errors.New("dedupe: operation panicked")
	// ErrInvalidResultType is returned by Do when the shared value is not a T.
	ErrInvalidResultType = errors.New("dedupe: invalid result type")
)

// Func is the operation shared between concurrent callers. The context it
// receives is detached from the cancellation of any single caller.
type Func func(ctx context.Context) (any, error)

// Observer receives deduplication events. Implementations must be safe for
// concurrent use.
type Observer interface {
	// Executed is called when a caller starts a new execution.
	Executed(key string)
	// Shared is called when a caller receives the result of another caller's execution.
	Shared(key string)
	// StaleRestart is called when a pending execution outlived the staleness bound
	// and a fresh one replaced it.
	StaleRestart(key string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Executed(string)     {}
func (NopObserver) Shared(string)       {}
func (NopObserver) StaleRestart(string) {}

// Option configures a Group.
type Option func(*Group)

// WithStaleAfter overrides DefaultStaleAfter. Values <= 0 are ignored.
func WithStaleAfter(d time.Duration) Option {
	return func(g *Group) {
		if d > 0 {
			g.staleAfter = d
		}
	}
}

// WithClock sets the clock used to age pending executions.
func WithClock(clock clockwork.Clock) Option {
	return func(g *Group) {
		g.clock = clock
	}
}

// WithObserver sets the event observer.
func WithObserver(observer Observer) Option {
	return func(g *Group) {
		g.observer = observer
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(g *Group) {
		g.logger = logger
	}
}

// pending records one in-flight execution.
type pending struct {
	id      uint64
	started time.Time
}

// Group collapses concurrent calls for the same key into one execution.
//
// A key is either absent or has exactly one pending execution. The pending
// entry is removed when the execution settles, whatever its outcome, so a
// failed call never blocks later ones. The zero value is not usable; call New.
type Group struct {
	calls      singleflight.Group
	pending    *xsync.MapOf[string, pending]
	seq        atomic.Uint64
	staleAfter time.Duration
	clock      clockwork.Clock
	observer   Observer
	logger     logging.Logger
}

// New returns a Group.
func New(opts ...Option) *Group {
	g := &Group{
		pending:    xsync.NewMapOf[string, pending](),
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.clock == nil {
		g.clock = clockwork.NewRealClock()
	}
	if g.observer == nil {
		g.observer = NopObserver{}
	}
	g.logger = logging.OrNop(g.logger).With("component", "dedupe")
	return g
}

// Do runs fn for key unless an execution for key is already pending, in which
// case the caller waits for that execution and receives its result.
//
// Every caller sharing an execution receives the same value and error. When ctx
// ends first Do returns ctx.Err(); the execution continues for the others.
func (g *Group) Do(ctx context.Context, key string, fn Func) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.forgetIfStale(key)

	var executed atomic.Bool
	ch := g.calls.DoChan(key, func() (any, error) {
		executed.Store(true)
		return g.execute(ctx, key, fn)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if !executed.Load() {
			g.observer.Shared(key)
		}
		return res.Val, res.Err
	}
}

func (g *Group) execute(ctx context.Context, key string, fn Func) (value any, err error) {
	id := g.seq.Add(1)
	g.pending.Store(key, pending{id: id, started: g.clock.Now()})
	defer g.release(key, id)

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("deduplicated operation panicked", "key", key, "panic", r)
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()

	g.observer.Executed(key)
	return fn(context.WithoutCancel(ctx))
}

// release drops the pending entry for key if it still belongs to execution id.
func (g *Group) release(key string, id uint64) {
	g.pending.Compute(key, func(old pending, loaded bool) (pending, bool) {
		return old, !loaded || old.id == id
	})
}

func (g *Group) forgetIfStale(key string) {
	p, ok := g.pending.Load(key)
	if !ok {
		return
	}
	age := g.clock.Since(p.started)
	if age < g.staleAfter {
		return
	}

	g.calls.Forget(key)
	g.release(key, p.id)
	g.logger.Warn("pending execution exceeded staleness bound, restarting", "key", key, "age", age)
	g.observer.StaleRestart(key)
}

// Pending reports whether an execution for key is in flight.
func (g *Group) Pending(key string) bool {
	_, ok := g.pending.Load(key)
	return ok
}

// InFlight returns the number of pending executions.
func (g *Group) InFlight() int {
	return g.pending.Size()
}

// Do is a type-safe wrapper around Group.Do.
func Do[T any](ctx context.Context, g *Group, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	raw, err := g.Do(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}

	value, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrInvalidResultType, raw)
	}
	return value, nil
}
