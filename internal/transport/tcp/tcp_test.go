package tcp

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/rfc-communicator/pkg/rfc"
)

// TestEchoOverPipe exercises the length-prefixed framer end to end: two
// Connectors dialed on opposite ends of a net.Pipe, with a real Driver
// call crossing the wire and back.
func TestEchoOverPipe(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	a := Dial(context.Background(), client, logger, nil)
	b := Dial(context.Background(), server, logger, nil)
	defer a.Close(nil)
	defer b.Close(nil)

	type provider struct {
		Echo rfc.RemoteFunc
	}
	b.SetProvider(&provider{Echo: func(ctx context.Context, args []any) (any, error) {
		return args, nil
	}})

	got, err := a.Driver().Call(context.Background(), "Echo", "hi")
	require.NoError(t, err)
	args, ok := got.([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"hi"}, args)
}

// TestOversizedFrameRejected confirms SendData refuses to write a frame
// past the configured size limit rather than silently truncating it.
func TestOversizedFrameRejected(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	client, server := net.Pipe()
	defer server.Close()

	c := Dial(context.Background(), client, logger, nil)
	defer c.Close(nil)

	big := make([]byte, maxFrameSize+1)
	err := c.SendData(context.Background(), rfc.Invoke{
		Return: &rfc.Return{UID: 1, Success: true, Value: string(big)},
	})
	assert.Error(t, err)
}
