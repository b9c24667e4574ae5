// Package rfc implements a transport-agnostic remote function call runtime:
// a Communicator multiplexes concurrent in-flight calls over a single
// bidirectional channel, dispatches incoming calls against a locally
// supplied provider (including nested member paths), and synthesizes a
// client-side Driver for outbound calls.
package rfc

import (
	"encoding/json"
	"reflect"
)

// Function is an outbound/inbound call request. Listener is a dot-separated
// path resolved against the remote peer's provider; UID correlates the
// eventual Return.
type Function struct {
	UID        uint64      `json:"uid"`
	Listener   string      `json:"listener"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter carries one call argument plus the sender's reflective type tag.
// Type is preserved for debugging only — dispatch never coerces by it.
type Parameter struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Return is the reply to a Function: Success true means Value is the return
// value, false means Value is an error record produced by SerializeError.
type Return struct {
	UID     uint64 `json:"uid"`
	Success bool   `json:"success"`
	Value   any    `json:"value"`
}

// Invoke is the wire envelope: exactly one of Function or Return is set,
// discriminated by presence of the "listener" field. This is an explicit
// sum type at the API boundary, field-presence form only at the wire
// boundary.
type Invoke struct {
	Function *Function
	Return   *Return
}

// wireEnvelope is the JSON shape actually placed on the wire: a flat object
// whose presence of "listener" discriminates Function from Return.
type wireEnvelope struct {
	UID        uint64      `json:"uid"`
	Listener   *string     `json:"listener,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
	Success    *bool       `json:"success,omitempty"`
	Value      any         `json:"value,omitempty"`
}

// IsFunction reports whether inv carries a call request.
func (inv Invoke) IsFunction() bool { return inv.Function != nil }

// IsReturn reports whether inv carries a reply.
func (inv Invoke) IsReturn() bool { return inv.Return != nil }

// EncodeInvoke serializes inv to its wire JSON form. The serializer MUST NOT
// emit "listener" on returns — wireEnvelope's omitempty pointer achieves
// that by construction.
func EncodeInvoke(inv Invoke) ([]byte, error) {
	var env wireEnvelope
	switch {
	case inv.Function != nil:
		env.UID = inv.Function.UID
		env.Listener = &inv.Function.Listener
		env.Parameters = inv.Function.Parameters
	case inv.Return != nil:
		env.UID = inv.Return.UID
		env.Success = &inv.Return.Success
		env.Value = inv.Return.Value
	default:
		return nil, errEmptyInvoke
	}
	return json.Marshal(env)
}

// DecodeInvoke parses the wire JSON form produced by EncodeInvoke (or an
// equivalent peer implementation) back into an Invoke.
func DecodeInvoke(data []byte) (Invoke, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Invoke{}, err
	}
	if env.Listener != nil {
		return Invoke{Function: &Function{
			UID:        env.UID,
			Listener:   *env.Listener,
			Parameters: env.Parameters,
		}}, nil
	}
	success := false
	if env.Success != nil {
		success = *env.Success
	}
	return Invoke{Return: &Return{
		UID:     env.UID,
		Success: success,
		Value:   env.Value,
	}}, nil
}

// typeTag reproduces the callee-ignored, primitive-category token a
// reflective type-of operation would produce: it is metadata only.
func typeTag(v any) string {
	if v == nil {
		return "undefined"
	}
	switch v.(type) {
	case bool:
		return "boolean"
	case string:
		return "string"
	case float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return "number"
	default:
		if reflect.TypeOf(v).Kind() == reflect.Func {
			return "function"
		}
		return "object"
	}
}

// NewParameters builds the Parameter vector for an outbound call's argument
// list, tagging each value with its reflective type.
func NewParameters(args ...any) []Parameter {
	params := make([]Parameter, len(args))
	for i, a := range args {
		params[i] = Parameter{Type: typeTag(a), Value: a}
	}
	return params
}
