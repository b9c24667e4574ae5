package rfc

import (
	"errors"
	"fmt"
)

var errEmptyInvoke = errors.New("rfc: invoke envelope carries neither function nor return")

// NotReadyError is raised synchronously by call issuance and Join when
// InspectReady returns a non-nil error. It carries the subclass name and
// the operation that triggered the check, so the diagnostic is
// self-describing wherever it surfaces.
type NotReadyError struct {
	Subclass string
	Method   string
	Hint     string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Subclass, e.Method, e.Hint)
}

// DispatchError is returned to the caller peer as a Return{Success:false}
// when the callee cannot resolve or execute the requested path.
type DispatchError struct {
	Listener string
	Reason   string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("rfc: dispatch %q: %s", e.Listener, e.Reason)
}

// ErrConnectionClosed is the default teardown error used to reject every
// outstanding pending call when a Communicator is destroyed without a more
// specific reason.
var ErrConnectionClosed = errors.New("Connection has been closed.")

// ErrorFields lets an application error surface additional own-enumerable
// fields through SerializeError, mirroring a JS Error's extra properties.
type ErrorFields interface {
	ErrorFields() map[string]any
}

// SerializeError converts a thrown/returned failure into a plain,
// transport-safe record. Non-error values pass through unchanged; the
// receiving peer never attempts to reconstruct a live error object from
// this record.
func SerializeError(err any) any {
	e, ok := err.(error)
	if !ok {
		return err
	}

	rec := map[string]any{
		"name":    errorName(e),
		"message": e.Error(),
	}
	if s, ok := e.(interface{ Stack() string }); ok {
		rec["stack"] = s.Stack()
	}
	if f, ok := e.(ErrorFields); ok {
		for k, v := range f.ErrorFields() {
			rec[k] = v
		}
	}
	return rec
}

// errorName reports a stable "name" field for an error record: the result
// of the error's own Name() method when it has one, "NotReadyError" or
// "DispatchError" for this package's error types, or "Error" for
// everything else (the default an unadorned Go error maps to, matching a
// JS bare Error).
func errorName(err error) string {
	type named interface{ Name() string }
	if n, ok := err.(named); ok {
		return n.Name()
	}
	switch err.(type) {
	case *NotReadyError:
		return "NotReadyError"
	case *DispatchError:
		return "DispatchError"
	default:
		return "Error"
	}
}
