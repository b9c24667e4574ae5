// Package demo supplies a minimal provider for exercising every
// transport end to end: the Echo.Upper and Echo.Reverse functions and a
// Time function, wired onto
// every accepted connector by cmd's server so a new deployment has
// something callable on day one, the same role the teacher's
// DeliveryService plays as the thing every handler ultimately calls into.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/webitel/rfc-communicator/pkg/rfc"
)

// Provider is the default remote object installed on every accepted
// connector.
type Provider struct {
	Echo RemoteFuncs
	Time rfc.RemoteFunc
}

// RemoteFuncs groups the Echo family under one nested path
// ("Echo.Upper", "Echo.Reverse"), demonstrating nested listener
// resolution the way pkg/rfc's dispatch engine walks struct fields.
type RemoteFuncs struct {
	Upper   rfc.RemoteFunc
	Reverse rfc.RemoteFunc
}

// New builds the demo provider.
func New() *Provider {
	return &Provider{
		Echo: RemoteFuncs{
			Upper:   upperFn,
			Reverse: reverseFn,
		},
		Time: timeFn,
	}
}

func upperFn(ctx context.Context, args []any) (any, error) {
	s, ok := firstString(args)
	if !ok {
		return nil, fmt.Errorf("demo: Echo.Upper expects one string argument")
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out), nil
}

func reverseFn(ctx context.Context, args []any) (any, error) {
	s, ok := firstString(args)
	if !ok {
		return nil, fmt.Errorf("demo: Echo.Reverse expects one string argument")
	}
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), nil
}

func timeFn(ctx context.Context, args []any) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func firstString(args []any) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	s, ok := args[0].(string)
	return s, ok
}
