package rfc

import (
	"fmt"
	"sync/atomic"
)

// ConnectorState is the connection lifecycle enumeration, in the partial
// order NONE < CONNECTING < OPEN < CLOSING < CLOSED.
type ConnectorState int32

const (
	StateNone ConnectorState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectorState) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Connector is the thin state-tracking wrapper that gates Communicator
// operations by connection lifecycle. Concrete transports
// (internal/transport/*) embed *Connector and drive SetState as their own
// handshake/teardown progresses.
type Connector struct {
	*Communicator
	subclass string
	header   any
	state    atomic.Int32
}

// NewConnector wraps transport (this Connector's own SendData
// implementation, or one further composed by the caller) into a
// Communicator gated by this Connector's lifecycle state, starting at
// StateNone. subclass names the concrete transport for diagnostics, so
// every NotReadyError names the concrete subclass and the method that
// triggered the check; header is captured once, immutably.
func NewConnector(subclass string, transport Transport, header any, opts ...Option) *Connector {
	conn := &Connector{subclass: subclass, header: header}
	conn.Communicator = New(transport, conn, opts...)
	conn.state.Store(int32(StateNone))
	return conn
}

// State reports the current lifecycle state.
func (conn *Connector) State() ConnectorState {
	return ConnectorState(conn.state.Load())
}

// SetState transitions the lifecycle state. Subclasses call this as their
// handshake/teardown progresses; the core does not validate the
// transition itself, since concrete connector subclasses are the ones
// that assign transitions.
func (conn *Connector) SetState(s ConnectorState) {
	conn.state.Store(int32(s))
}

// Header returns the opaque value captured at construction. The core
// never interprets it.
func (conn *Connector) Header() any {
	return conn.header
}

// InspectReady implements ReadyChecker: only StateOpen permits calls and
// joins to proceed.
func (conn *Connector) InspectReady(method string) error {
	switch conn.State() {
	case StateOpen:
		return nil
	case StateNone:
		return conn.notReady(method, "connect first.")
	case StateConnecting:
		return conn.notReady(method, "it's on connecting, wait for a second.")
	case StateClosing:
		return conn.notReady(method, "the connection is on closing.")
	case StateClosed:
		return conn.notReady(method, "the connection has been closed.")
	default:
		return conn.notReady(method, "unknown error, but not connected.")
	}
}

func (conn *Connector) notReady(method, hint string) error {
	return &NotReadyError{Subclass: conn.subclass, Method: method, Hint: hint}
}

// Close transitions to StateClosing then StateClosed and destroys the
// underlying Communicator with err, rejecting every outstanding call and
// waking every joiner. Transports call this from whatever their teardown
// path is (read EOF, context cancellation, explicit shutdown).
func (conn *Connector) Close(err error) {
	conn.SetState(StateClosing)
	conn.SetState(StateClosed)
	conn.Destroy(err)
}

// String satisfies fmt.Stringer for log lines, e.g. "WSConnector[OPEN]".
func (conn *Connector) String() string {
	return fmt.Sprintf("%s[%s]", conn.subclass, conn.State())
}
