// Package rpc shares a single remote node connection between many callers.
//
// An Adapter is a handle onto the connection. Handles are cheap to Clone and
// each concurrent caller uses its own clone. A call is two-phase: Acquire
// waits for exclusive use of the connection and returns a Permit, and Call
// spends the permit on one request. The permit is released when the call
// returns, whatever the outcome.
//
// The first transport error poisons the connection for every clone. From
// then on Acquire fails immediately with ErrPoisoned; recovering means
// building a new Adapter around a new connection.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/manifest-network/chainguard/internal/metrics"
	"github.com/manifest-network/chainguard/internal/service"
)

var (
	// ErrTransport is matched by every error caused by the connection itself.
	ErrTransport = errors.New("rpc transport failure")
	// ErrPoisoned is returned by Acquire once a transport error has been seen.
	ErrPoisoned = errors.New("rpc connection poisoned")
	// ErrHeightOutOfRange is returned when the node reports a height that does not fit in a uint64.
	ErrHeightOutOfRange = errors.New("remote height out of range")
)

// State is the lifecycle of one handle.
type State int32

const (
	// Idle handles hold no permit.
	Idle State = iota
	// Acquiring handles are waiting for the connection.
	Acquiring
	// Acquired handles hold an unspent permit.
	Acquired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Acquired:
		return "acquired"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// shared is the state every clone of an adapter points at.
type shared struct {
	conn    Conn
	sem     *semaphore.Weighted
	sticky  stickyError
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Adapter is one handle onto a shared connection. A handle must not be used
// from more than one goroutine at a time; Clone it instead.
type Adapter struct {
	shared *shared
	state  atomic.Int32
	permit *Permit
}

// Option configures an adapter family.
type Option func(*shared)

// WithMetrics records calls, in-flight requests and poisonings on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *shared) { s.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *shared) { s.logger = logger }
}

// New wraps conn. conn must not be used by anything else afterwards.
func New(conn Conn, opts ...Option) *Adapter {
	s := &shared{
		conn: conn,
		sem:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return &Adapter{shared: s}
}

// Clone returns a new idle handle onto the same connection and error cell.
func (a *Adapter) Clone() *Adapter {
	return &Adapter{shared: a.shared}
}

// State reports where this handle is in its acquire/call cycle.
func (a *Adapter) State() State {
	return State(a.state.Load())
}

// Err returns the transport error that poisoned the connection, if any.
func (a *Adapter) Err() error {
	return a.shared.sticky.Load()
}

// Permit grants exclusive use of the connection for one call.
type Permit struct {
	shared *shared
	handle *Adapter
	done   atomic.Bool
}

// Release gives up an unused permit. It is a no-op once the permit has been
// spent or released.
func (p *Permit) Release() {
	if p.take() {
		p.finish()
	}
}

func (p *Permit) take() bool {
	return p.done.CompareAndSwap(false, true)
}

func (p *Permit) finish() {
	p.handle.state.Store(int32(Idle))
	p.shared.sem.Release(1)
}

// Acquire waits for exclusive use of the connection. If ctx ends first the
// claim is abandoned and ctx.Err() is returned. On a poisoned connection it
// fails straight away without touching the node. A handle that already holds
// an unspent permit gets that permit back.
func (a *Adapter) Acquire(ctx context.Context) (*Permit, error) {
	if err := a.shared.sticky.Load(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoisoned, err)
	}
	if a.State() == Acquired && a.permit != nil && !a.permit.done.Load() {
		return a.permit, nil
	}

	a.state.Store(int32(Acquiring))
	if err := a.shared.sem.Acquire(ctx, 1); err != nil {
		a.state.Store(int32(Idle))
		return nil, err
	}

	// the call we were queued behind may have poisoned the connection
	if err := a.shared.sticky.Load(); err != nil {
		a.shared.sem.Release(1)
		a.state.Store(int32(Idle))
		return nil, fmt.Errorf("%w: %w", ErrPoisoned, err)
	}

	a.permit = &Permit{shared: a.shared, handle: a}
	a.state.Store(int32(Acquired))
	return a.permit, nil
}

// Call spends permit on req. It panics if permit is nil, already spent, or
// was acquired from an unrelated adapter: those are caller bugs.
func (a *Adapter) Call(ctx context.Context, permit *Permit, req Request) (Response, error) {
	if permit == nil {
		panic("rpc: Call without a permit, Acquire must complete first")
	}
	if permit.shared != a.shared {
		panic("rpc: permit belongs to a different adapter")
	}
	if !permit.take() {
		panic("rpc: permit already spent or released")
	}
	defer permit.finish()

	method := methodName(req)
	end := a.shared.metrics.RPCStarted(method)

	resp, err := a.dispatch(ctx, req)
	switch {
	case err == nil:
		end("ok")
	case errors.Is(err, ErrTransport):
		end("transport_error")
		if a.shared.sticky.Store(err) {
			a.shared.metrics.RPCPoisoned()
			a.shared.logger.Error("Node connection poisoned", "method", method, "error", err)
		}
	default:
		end("invalid_response")
	}
	return resp, err
}

// Oneshot acquires a permit on this handle and spends it on req.
func (a *Adapter) Oneshot(ctx context.Context, req Request) (Response, error) {
	permit, err := a.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return a.Call(ctx, permit, req)
}

// Service exposes the adapter as a service.Service. Every call runs on a
// fresh clone, so the returned service is safe for concurrent use.
func (a *Adapter) Service() service.Service[Request, Response] {
	return service.Func[Request, Response](func(ctx context.Context, req Request) (Response, error) {
		return a.Clone().Oneshot(ctx, req)
	})
}

func (a *Adapter) dispatch(ctx context.Context, req Request) (Response, error) {
	conn := a.shared.conn
	switch req := req.(type) {
	case ChainHeightRequest:
		return getChainHeight(ctx, conn)
	case BlockHeaderRequest:
		return getBlockHeader(ctx, conn, req.ID)
	case BlockPOWInfoRequest:
		return getBlockPOWInfo(ctx, conn, req.ID)
	default:
		return nil, fmt.Errorf("unsupported rpc request %T", req)
	}
}

func methodName(req Request) string {
	switch req := req.(type) {
	case ChainHeightRequest:
		return "get_height"
	case BlockHeaderRequest:
		return "get_block"
	case BlockPOWInfoRequest:
		if _, ok := req.ID.Hash(); ok {
			return "get_block_header_by_hash"
		}
		return "get_block_header_by_height"
	default:
		return "unknown"
	}
}

func transport(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
