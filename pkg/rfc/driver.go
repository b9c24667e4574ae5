package rfc

import (
	"context"
	"strings"
)

// caller is the subset of Communicator the Driver needs, letting driver.go
// stay decoupled from Communicator's full surface.
type caller interface {
	callFunction(ctx context.Context, path string, args []any) (any, error)
}

// Driver is the client-side proxy for outbound calls. Go has no
// first-class dynamic attribute interception, so the Driver exposes an
// explicit builder instead of synthesizing arbitrary chains from attribute
// access: Path (or the Call shorthand) plays the role of "d.a.b.c", and
// Invoke plays the role of the trailing "(x, y, …)". The wire effect is
// identical: exactly one outbound Function per Invoke, with Listener set
// to the dotted path and Parameters tagged the same way an
// attribute-chaining driver would.
//
// A *Call holds no per-path state beyond its own dotted path — it is safe
// to build once and reuse, or to rebuild the same chain repeatedly; both
// behave identically.
type Driver struct {
	c caller
}

func newDriver(c caller) *Driver {
	return &Driver{c: c}
}

// Path starts (or extends) a dotted listener chain without invoking it,
// mirroring "driver.a.b.c" before the trailing call parentheses.
func (d *Driver) Path(segments ...string) *Call {
	return &Call{c: d.c, path: strings.Join(segments, ".")}
}

// Call issues the call named by the dotted path directly, the common case
// where the caller already knows the full listener string.
func (d *Driver) Call(ctx context.Context, path string, args ...any) (any, error) {
	return d.c.callFunction(ctx, path, args)
}

// Call is a reusable handle for one dotted listener path. Extend grows the
// chain the way accessing a further attribute on a materialized function
// node would in a dynamic driver ("d.a.b.c.d"); Invoke is the trailing
// function-call syntax.
type Call struct {
	c    caller
	path string
}

// Extend appends a further dotted segment, returning a new immutable Call —
// equivalent to accessing one more attribute on an already-materialized
// function node.
func (call *Call) Extend(segment string) *Call {
	next := call.path
	if next != "" {
		next += "."
	}
	next += segment
	return &Call{c: call.c, path: next}
}

// Invoke synthesizes exactly one outbound Function with Listener equal to
// the accumulated dotted path and Parameters built from args, and returns
// the eventual reply or error.
func (call *Call) Invoke(ctx context.Context, args ...any) (any, error) {
	return call.c.callFunction(ctx, call.path, args)
}

// Path reports the dotted listener string this handle will call.
func (call *Call) Path() string { return call.path }

// Bind returns a zero-argument closure over Invoke with args pre-applied,
// the Go analogue of Function.prototype.bind on a materialized driver
// node.
func (call *Call) Bind(args ...any) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return call.Invoke(ctx, args...)
	}
}
