// Package grpc adapts rfc.Communicator to a single bidi-streaming gRPC
// method. The wire payload stays the JSON envelope rfc.EncodeInvoke
// already produces; a raw codec (see codec.go), forced on both the
// server (grpc.ForceServerCodec) and the client (grpc.ForceCodec), carries
// that envelope straight through a gRPC frame instead of layering a
// second, generated protobuf message type on top of it.
package grpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/webitel/rfc-communicator/pkg/rfc"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// serviceName is the fully qualified gRPC service name this transport
// registers and dials against.
const serviceName = "rfc.Communicator"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       streamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "rfc/communicator.proto",
}

// Server owns a live grpc.Server registered with the single Stream method
// and hands every new stream to onConnect.
type Server struct {
	grpcServer *grpc.Server
	onConnect  func(*Connector)
	logger     *slog.Logger
	connOpts   []rfc.Option
}

// NewServer builds a *grpc.Server wired for the rfc stream method, with an
// otelgrpc stats handler and a recovery interceptor that turns a panic in
// the stream handler into an error status instead of crashing the process.
// onConnect is invoked once per accepted stream with the freshly
// constructed Connector; the caller installs a provider on it (or tracks
// it in a registry) from there.
func NewServer(logger *slog.Logger, onConnect func(*Connector), opts ...rfc.Option) *Server {
	s := &Server{onConnect: onConnect, logger: logger, connOpts: opts}
	recoveryOpts := []recovery.Option{
		recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
			logger.Error("grpc: recovered from panic in stream handler", "panic", p)
			return fmt.Errorf("grpc: internal error")
		}),
	}
	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainStreamInterceptor(recovery.StreamServerInterceptor(recoveryOpts...)),
		grpc.ForceServerCodec(rawCodec{}),
	)
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

// streamHandler is the free function ServiceDesc.Streams[0].Handler must
// be, since grpc.StreamDesc fixes that signature; it recovers the
// receiving *Server from srv to reach onConnect and connOpts.
func streamHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*Server)
	c := newConnector(stream, s.logger, nil, s.connOpts...)
	c.Connector.SetState(rfc.StateConnecting)
	c.Connector.SetState(rfc.StateOpen)
	if s.onConnect != nil {
		s.onConnect(c)
	}
	return c.pump(stream.Context())
}

// GRPCServer exposes the underlying *grpc.Server so callers can attach it
// to a net.Listener via the standard grpc.Server.Serve.
func (s *Server) GRPCServer() *grpc.Server { return s.grpcServer }

// Dial opens a client-side stream against target and returns a ready
// Connector. The otelgrpc stats handler instruments the dial the same way
// the server side is instrumented.
func Dial(ctx context.Context, target string, logger *slog.Logger, header any, opts ...rfc.Option) (*Connector, error) {
	cc, err := grpc.NewClient(target,
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, err
	}

	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+serviceName+"/Stream")
	if err != nil {
		return nil, err
	}

	c := newConnector(stream, logger, header, opts...)
	c.cc = cc
	c.Connector.SetState(rfc.StateConnecting)
	c.Connector.SetState(rfc.StateOpen)
	go func() {
		_ = c.pump(ctx)
	}()
	return c, nil
}

// grpcStream is satisfied by both grpc.ServerStream and grpc.ClientStream.
type grpcStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// Connector is a *rfc.Connector whose Transport writes Invoke frames onto
// a bidi gRPC stream using the raw passthrough codec.
type Connector struct {
	*rfc.Connector

	stream grpcStream
	cc     *grpc.ClientConn
	logger *slog.Logger
}

func newConnector(stream grpcStream, logger *slog.Logger, header any, opts ...rfc.Option) *Connector {
	c := &Connector{stream: stream, logger: logger}
	c.Connector = rfc.NewConnector("GRPCConnector", c, header, opts...)
	return c
}

// SendData implements rfc.Transport by sending one encoded Invoke as a raw
// gRPC message frame.
func (c *Connector) SendData(ctx context.Context, inv rfc.Invoke) error {
	data, err := rfc.EncodeInvoke(inv)
	if err != nil {
		return err
	}
	return c.stream.SendMsg(&rawFrame{data: data})
}

// pump decodes every inbound frame and feeds it to ReplyData until the
// stream ends, then closes the Connector exactly once.
func (c *Connector) pump(ctx context.Context) error {
	for {
		frame := &rawFrame{}
		if err := c.stream.RecvMsg(frame); err != nil {
			if err == io.EOF {
				c.Connector.Close(nil)
				return nil
			}
			c.Connector.Close(err)
			return err
		}

		inv, err := rfc.DecodeInvoke(frame.data)
		if err != nil {
			c.logger.Warn("grpc: dropping malformed frame", "error", err)
			continue
		}
		c.Connector.ReplyData(ctx, inv)
	}
}
