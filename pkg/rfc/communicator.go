package rfc

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Transport is what a concrete connector implementation supplies to a
// Communicator: the ability to deliver one already-encoded Invoke to the
// remote peer. Serialization format and the underlying channel are the
// transport's concern, not the core's.
type Transport interface {
	SendData(ctx context.Context, inv Invoke) error
}

// ReadyChecker is implemented by the lifecycle gate layered on top of the
// core (Connector) or by any other subclass that wants to veto calls and
// joins in certain states.
type ReadyChecker interface {
	InspectReady(method string) error
}

var tracer = otel.Tracer("github.com/webitel/rfc-communicator/pkg/rfc")

// Communicator is the symmetric peer multiplexing concurrent in-flight
// calls over one Transport. It is created externally and torn down by
// exactly one call to Destroy; after that no further call is issued or
// accepted.
type Communicator struct {
	transport Transport
	ready     ReadyChecker
	logger    *slog.Logger

	seq     atomic.Uint64
	pending *pendingTable
	join    *joinCoordinator
	engine  *dispatchEngine
	driver  *Driver

	provider atomic.Pointer[any]
	breaker  *gobreaker.CircuitBreaker[struct{}]

	destroyed atomic.Bool
}

// New constructs a Communicator bound to transport, gated by ready (most
// callers pass a *Connector, which is itself a ReadyChecker), configured
// by opts.
func New(transport Transport, ready ReadyChecker, opts ...Option) *Communicator {
	c := &Communicator{
		transport: transport,
		ready:     ready,
		logger:    slog.Default(),
		pending:   newPendingTable(),
		join:      newJoinCoordinator(),
		engine:    newDispatchEngine(),
	}
	c.driver = newDriver(c)
	for _, opt := range opts {
		opt(c)
	}
	if err := registerPendingGauge(c); err != nil {
		c.logger.Warn("rfc: pending-call gauge registration failed", "error", err)
	}
	return c
}

// SetProvider installs (or replaces) the object that answers incoming
// calls. May be called at any time; in-flight dispatches read the field
// once at resolution time, so a mutation mid-dispatch is never torn.
func (c *Communicator) SetProvider(p any) {
	c.provider.Store(&p)
}

// Provider returns the object currently installed, or nil if none has ever
// been installed.
func (c *Communicator) Provider() any {
	if v := c.provider.Load(); v != nil {
		return *v
	}
	return nil
}

// Driver returns the shared client-side proxy. Safe to call before the
// connection reaches its open state; actual transmission is gated by
// InspectReady at call time, not at Driver() retrieval time.
func (c *Communicator) Driver() *Driver {
	return c.driver
}

// Join suspends until Destroy is called.
func (c *Communicator) Join() error {
	if err := c.ready.InspectReady("Join"); err != nil {
		return err
	}
	c.join.Wait()
	return nil
}

// JoinFor suspends up to d: true if woken by Destroy, false on timeout.
func (c *Communicator) JoinFor(d time.Duration) (bool, error) {
	if err := c.ready.InspectReady("JoinFor"); err != nil {
		return false, err
	}
	return c.join.WaitFor(d), nil
}

// JoinUntil is JoinFor with an absolute deadline.
func (c *Communicator) JoinUntil(deadline time.Time) (bool, error) {
	if err := c.ready.InspectReady("JoinUntil"); err != nil {
		return false, err
	}
	return c.join.WaitUntil(deadline), nil
}

// ReplyData is the transport's entry point for every received message.
// Incoming Function calls are dispatched against the current provider and
// replied to; incoming Return values settle the matching pending call, or
// are dropped silently if none is outstanding (a late reply after
// destruction).
func (c *Communicator) ReplyData(ctx context.Context, inv Invoke) {
	switch {
	case inv.IsFunction():
		c.handleFunction(ctx, *inv.Function)
	case inv.IsReturn():
		c.handleReturn(*inv.Return)
	}
}

func (c *Communicator) handleFunction(ctx context.Context, fn Function) {
	ctx, span := tracer.Start(ctx, "rfc.dispatch",
		trace.WithAttributes(
			attribute.Int64("rfc.uid", int64(fn.UID)),
			attribute.String("rfc.listener", fn.Listener),
		))
	defer span.End()

	ret := c.engine.dispatch(ctx, c.Provider(), fn)
	if !ret.Success {
		span.SetStatus(codes.Error, "dispatch failed")
		c.logger.Warn("rfc: dispatch failed", "uid", fn.UID, "listener", fn.Listener, "value", ret.Value)
		dispatchErrors.Add(ctx, 1)
	}

	if err := c.transport.SendData(ctx, Invoke{Return: &ret}); err != nil {
		c.logger.Error("rfc: failed to send return", "uid", fn.UID, "error", err)
	}
}

func (c *Communicator) handleReturn(ret Return) {
	w, ok := c.pending.take(ret.UID)
	if !ok {
		return
	}
	if ret.Success {
		w.resolve(ret.Value)
	} else {
		w.reject(&RemoteError{Value: ret.Value})
	}
}

// RemoteError wraps a callee-reported failure record as a Go error on the
// caller side. The core never reconstructs a live error from it;
// callers that want to inspect the original fields read Value directly.
type RemoteError struct {
	Value any
}

func (e *RemoteError) Error() string {
	if m, ok := e.Value.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok {
			return msg
		}
	}
	return "rfc: remote call failed"
}

// callFunction implements the call-issuance sequence; it is the single
// entry point the Driver uses.
func (c *Communicator) callFunction(ctx context.Context, path string, args []any) (any, error) {
	if err := c.ready.InspectReady("Call"); err != nil {
		return nil, err
	}

	uid := c.seq.Add(1)

	ctx, span := tracer.Start(ctx, "rfc.call",
		trace.WithAttributes(
			attribute.Int64("rfc.uid", int64(uid)),
			attribute.String("rfc.listener", path),
		))
	defer span.End()

	result := make(chan any, 1)
	failure := make(chan error, 1)
	c.pending.insert(uid,
		func(v any) { result <- v },
		func(err error) { failure <- err },
	)
	if c.destroyed.Load() {
		c.pending.take(uid)
		span.SetStatus(codes.Error, ErrConnectionClosed.Error())
		return nil, ErrConnectionClosed
	}

	fn := Function{UID: uid, Listener: path, Parameters: NewParameters(args...)}
	send := func() error { return c.transport.SendData(ctx, Invoke{Function: &fn}) }
	if c.breaker != nil {
		_, err := c.breaker.Execute(func() (struct{}, error) { return struct{}{}, send() })
		if err != nil {
			c.pending.take(uid)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	} else if err := send(); err != nil {
		c.pending.take(uid)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	select {
	case v := <-result:
		return v, nil
	case err := <-failure:
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case <-ctx.Done():
		c.pending.take(uid)
		return nil, ctx.Err()
	}
}

// Destroy takes every entry from the pending-call table and rejects it
// with err (or ErrConnectionClosed if err is nil), clears the table, and
// wakes every joiner. Idempotent: repeated invocation is a no-op beyond
// the first.
func (c *Communicator) Destroy(err error) {
	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}
	if err == nil {
		err = ErrConnectionClosed
	}
	c.pending.clear(err)
	c.join.NotifyAll()
}

// PendingCalls reports the number of outstanding calls — an introspection
// hook for internal/monitor; it has no bearing on dispatch semantics.
func (c *Communicator) PendingCalls() int {
	return c.pending.len()
}
