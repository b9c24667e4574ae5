package rfc

import (
	"context"
	"reflect"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// NoProvider is the sentinel installed when a peer explicitly offers
// nothing, as distinguished from "not yet installed" (a Go nil interface).
type NoProvider struct{}

// RemoteFunc is the calling convention every dispatchable provider method
// must satisfy: it receives the call's context and the raw parameter
// values, and returns the value to reply with or an error to reject with.
// Go has no reflective positional-argument matching as forgiving as a
// dynamic language's, so dispatch fixes one signature rather than
// reflecting over arbitrary method shapes — the receiver can still be any
// struct field walked along the listener path.
type RemoteFunc func(ctx context.Context, args []any) (any, error)

// resolvedPath is the cached outcome of walking a listener path against a
// provider's concrete type: a chain of struct field indices for the
// intermediate segments, plus either a terminal field index (a RemoteFunc
// field) or a terminal method index. Caching these indices by
// (reflect.Type, listener) means a cache hit re-binds with Value.Field /
// Value.Method — direct indexed access — instead of repeating the
// FieldByName/MethodByName name lookup (which walks the type's field and
// method tables) on every call to a hot path.
//
// Because the cache holds structural indices rather than a closure bound
// to one receiver, it stays correct across SetProvider swaps: a cache hit
// always re-binds against whatever provider instance is live right now.
type resolvedPath struct {
	fieldPath []int
	fieldIdx  int // >= 0 if the terminal segment names a RemoteFunc field
	methodIdx int // >= 0 if the terminal segment names a method
}

type pathCacheKey struct {
	provType reflect.Type
	listener string
}

// dispatchEngine resolves Function calls against a provider, enforcing the
// access-control rules, and produces Return envelopes. It never panics or
// otherwise propagates an error to the caller of ReplyData; every failure
// is turned into a negative Return.
type dispatchEngine struct {
	cache *lru.Cache[pathCacheKey, resolvedPath]
}

const defaultPathCacheSize = 1024

func newDispatchEngine() *dispatchEngine {
	return newDispatchEngineSize(defaultPathCacheSize)
}

func newDispatchEngineSize(size int) *dispatchEngine {
	c, _ := lru.New[pathCacheKey, resolvedPath](size)
	return &dispatchEngine{cache: c}
}

// dispatch resolves inv against provider and returns the reply to send.
func (d *dispatchEngine) dispatch(ctx context.Context, provider any, inv Function) Return {
	if provider == nil {
		return d.fail(inv.UID, &DispatchError{Listener: inv.Listener, Reason: "provider not specified yet"})
	}
	if _, explicit := provider.(NoProvider); explicit {
		return d.fail(inv.UID, &DispatchError{Listener: inv.Listener, Reason: "provider would not be"})
	}

	fn, err := d.resolve(provider, inv.Listener)
	if err != nil {
		return d.fail(inv.UID, err)
	}

	args := make([]any, len(inv.Parameters))
	for i, p := range inv.Parameters {
		args[i] = p.Value
	}

	ret, err := fn(ctx, args)
	if err != nil {
		return d.fail(inv.UID, err)
	}
	return Return{UID: inv.UID, Success: true, Value: ret}
}

func (d *dispatchEngine) fail(uid uint64, err error) Return {
	return Return{UID: uid, Success: false, Value: SerializeError(err)}
}

// segmentBlocked applies the access-control rules to one path segment,
// rejecting members that a caller should never be able to reach remotely.
// Go's reflect package exposes no __proto__/__class__-style ambient escape
// hatch, so this list covers the conventions that matter for Go providers.
func segmentBlocked(segment string) (bool, string) {
	switch {
	case strings.HasPrefix(segment, "_"):
		return true, "underscore-prefixed members are private"
	case strings.HasSuffix(segment, "_"):
		return true, "underscore-suffixed members are private"
	case strings.EqualFold(segment, "constructor"):
		return true, "constructor is not callable remotely"
	case strings.EqualFold(segment, "prototype"):
		return true, "prototype is not callable remotely"
	case strings.EqualFold(segment, "toString") || strings.EqualFold(segment, "String"):
		return true, "the default string-coercion method is not callable remotely"
	}
	return false, ""
}

// resolve walks listener's dot-separated segments against provider,
// returning a RemoteFunc bound to the resolved receiver. Intermediate
// segments select nested struct fields; the final segment must name an
// exported method with the RemoteFunc signature, or an exported field of
// type RemoteFunc.
func (d *dispatchEngine) resolve(provider any, listener string) (RemoteFunc, error) {
	segments := strings.Split(listener, ".")
	for _, seg := range segments {
		if blocked, reason := segmentBlocked(seg); blocked {
			return nil, &DispatchError{Listener: listener, Reason: reason}
		}
	}

	key := pathCacheKey{provType: reflect.TypeOf(provider), listener: listener}
	if cached, ok := d.cache.Get(key); ok {
		return bindResolved(provider, cached, listener)
	}

	fn, resolved, err := bindPath(provider, segments, listener)
	if err != nil {
		return nil, err
	}
	d.cache.Add(key, resolved)
	return fn, nil
}

// deref follows pointer indirection down to the addressed value, reporting
// whether it hit a nil pointer along the way.
func deref(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, true
}

// bindPath walks the non-terminal segments as nested struct fields by
// name, then binds the terminal segment as a method or RemoteFunc-typed
// field, recording the field/method indices it found along the way so a
// later call can re-bind via bindResolved without repeating the by-name
// lookups.
func bindPath(provider any, segments []string, listener string) (RemoteFunc, resolvedPath, error) {
	cur := reflect.ValueOf(provider)
	var resolved resolvedPath
	resolved.fieldIdx, resolved.methodIdx = -1, -1

	for _, seg := range segments[:len(segments)-1] {
		var ok bool
		cur, ok = deref(cur)
		if !ok {
			return nil, resolvedPath{}, &DispatchError{Listener: listener, Reason: "nested provider is nil"}
		}
		if cur.Kind() != reflect.Struct {
			return nil, resolvedPath{}, &DispatchError{Listener: listener, Reason: "cannot descend into non-struct member: " + seg}
		}
		field, ok := cur.Type().FieldByName(seg)
		if !ok || len(field.Index) != 1 || !field.IsExported() {
			return nil, resolvedPath{}, &DispatchError{Listener: listener, Reason: "no such nested member: " + seg}
		}
		resolved.fieldPath = append(resolved.fieldPath, field.Index[0])
		cur = cur.Field(field.Index[0])
	}

	last := segments[len(segments)-1]

	// The field check needs the dereferenced struct (FieldByName panics on
	// a pointer Value); the method check deliberately keeps cur as-is,
	// pointer included, since a *T's method set covers both T and *T
	// receivers while T's alone would miss pointer-receiver methods.
	if structCur, ok := deref(cur); ok && structCur.Kind() == reflect.Struct {
		if field, ok := structCur.Type().FieldByName(last); ok && len(field.Index) == 1 && field.IsExported() {
			if fn, ok := structCur.Field(field.Index[0]).Interface().(RemoteFunc); ok && fn != nil {
				resolved.fieldIdx = field.Index[0]
				return fn, resolved, nil
			}
		}
	}

	if cur.Kind() == reflect.Ptr && cur.IsNil() {
		return nil, resolvedPath{}, &DispatchError{Listener: listener, Reason: "nested provider is nil"}
	}
	m, ok := cur.Type().MethodByName(last)
	if !ok {
		return nil, resolvedPath{}, &DispatchError{Listener: listener, Reason: "no such remote function: " + last}
	}
	fn, ok := cur.Method(m.Index).Interface().(func(context.Context, []any) (any, error))
	if !ok {
		return nil, resolvedPath{}, &DispatchError{Listener: listener, Reason: "remote function has an incompatible signature: " + last}
	}
	resolved.methodIdx = m.Index
	return fn, resolved, nil
}

// bindResolved re-binds a cached resolvedPath against provider's current
// value, without touching reflect's by-name field or method lookups.
func bindResolved(provider any, r resolvedPath, listener string) (RemoteFunc, error) {
	cur := reflect.ValueOf(provider)
	for _, idx := range r.fieldPath {
		var ok bool
		cur, ok = deref(cur)
		if !ok {
			return nil, &DispatchError{Listener: listener, Reason: "nested provider is nil"}
		}
		cur = cur.Field(idx)
	}

	if r.fieldIdx >= 0 {
		structCur, ok := deref(cur)
		if !ok {
			return nil, &DispatchError{Listener: listener, Reason: "nested provider is nil"}
		}
		fn, ok := structCur.Field(r.fieldIdx).Interface().(RemoteFunc)
		if !ok || fn == nil {
			return nil, &DispatchError{Listener: listener, Reason: "no such remote function: " + listener}
		}
		return fn, nil
	}

	if cur.Kind() == reflect.Ptr && cur.IsNil() {
		return nil, &DispatchError{Listener: listener, Reason: "nested provider is nil"}
	}
	if r.methodIdx >= cur.NumMethod() {
		return nil, &DispatchError{Listener: listener, Reason: "no such remote function: " + listener}
	}
	fn, ok := cur.Method(r.methodIdx).Interface().(func(context.Context, []any) (any, error))
	if !ok {
		return nil, &DispatchError{Listener: listener, Reason: "remote function has an incompatible signature: " + listener}
	}
	return fn, nil
}
