package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/webitel/rfc-communicator/config"
	"github.com/webitel/rfc-communicator/infra/discovery"
	"github.com/webitel/rfc-communicator/infra/observability"
	"github.com/webitel/rfc-communicator/internal/demo"
	"github.com/webitel/rfc-communicator/internal/monitor"
	grpctransport "github.com/webitel/rfc-communicator/internal/transport/grpc"
	lptransport "github.com/webitel/rfc-communicator/internal/transport/lp"
	tcptransport "github.com/webitel/rfc-communicator/internal/transport/tcp"
	wstransport "github.com/webitel/rfc-communicator/internal/transport/ws"
	workertransport "github.com/webitel/rfc-communicator/internal/transport/worker"
	"github.com/webitel/rfc-communicator/pkg/rfc"
)

// NewApp wires every transport fx enables in cfg behind one lifecycle.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideRegistry,
			ProvideConnectorOptions,
		),
		fx.Invoke(
			RunWS,
			RunTCP,
			RunLP,
			RunGRPC,
			RunWorker,
			RunDiscovery,
			RunMonitor,
		),
	)
}

// ProvideLogger bootstraps the OTel SDK and returns a logger bridged to
// it; the TracerProvider itself is left running for the process lifetime,
// matching the teacher's own bootstrap convention of tearing it down only
// on full process shutdown rather than per-module.
func ProvideLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, _, err := observability.Bootstrap(context.Background(), cfg.ServiceName, version, sdktrace.WithSampler(sdktrace.AlwaysSample()))
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// ProvideRegistry builds the shared connector registry every transport
// records its accepted connectors in and the monitor dashboard enumerates.
func ProvideRegistry() *Registry {
	return NewRegistry()
}

// ProvideConnectorOptions builds the rfc.Option slice shared by every
// transport, applying the configured circuit breaker if enabled.
func ProvideConnectorOptions(cfg *config.Config) []rfc.Option {
	if !cfg.Breaker.Enabled {
		return nil
	}
	return []rfc.Option{
		rfc.WithCircuitBreaker("rfc-communicator", cfg.Breaker.FailureThreshold, cfg.Breaker.OpenFor),
	}
}

func installDemo(conn *rfc.Connector) {
	conn.SetProvider(demo.New())
}

// RunWS starts the WebSocket listener when cfg.WS.Enabled, tearing it down
// on fx's OnStop.
func RunWS(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger, reg *Registry, opts []rfc.Option) {
	if !cfg.WS.Enabled {
		return
	}

	mux := chi.NewRouter()
	mux.Get("/rfc/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wstransport.Accept(w, r, logger, nil, opts...)
		if err != nil {
			logger.Error("ws accept failed", "error", err)
			return
		}
		installDemo(conn.Connector)
		id := uuid.NewString()
		reg.PutTracked(id, conn.Connector)
	})

	srv := &http.Server{Addr: cfg.WS.Addr, Handler: mux}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("ws server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// RunTCP starts the raw-socket listener when cfg.TCP.Enabled.
func RunTCP(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger, reg *Registry, opts []rfc.Option) {
	if !cfg.TCP.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.TCP.Addr)
			if err != nil {
				return fmt.Errorf("tcp listen: %w", err)
			}
			go func() {
				for {
					c, err := ln.Accept()
					if err != nil {
						return
					}
					conn := tcptransport.Dial(context.Background(), c, logger, nil, opts...)
					installDemo(conn.Connector)
					reg.PutTracked(uuid.NewString(), conn.Connector)
				}
			}()
			return nil
		},
	})
}

// RunLP mounts the long-poll route when cfg.LP.Enabled. A fresh connector
// is created per POST /rfc/new, the client then polls it by id.
func RunLP(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger, reg *Registry, opts []rfc.Option) {
	if !cfg.LP.Enabled {
		return
	}

	var lpMu sync.RWMutex
	lpConns := make(map[string]*lptransport.Connector)

	mux := chi.NewRouter()
	mux.Post("/rfc/new", func(w http.ResponseWriter, r *http.Request) {
		conn := lptransport.New(nil, opts...)
		installDemo(conn.Connector)
		id := uuid.NewString()

		lpMu.Lock()
		lpConns[id] = conn
		lpMu.Unlock()
		reg.Put(id, conn.Connector)
		go func() {
			conn.Join()
			lpMu.Lock()
			delete(lpConns, id)
			lpMu.Unlock()
			reg.Remove(id)
		}()

		w.Write([]byte(id))
	})
	lptransport.Mount(mux, func(id string) (*lptransport.Connector, bool) {
		lpMu.RLock()
		defer lpMu.RUnlock()
		c, ok := lpConns[id]
		return c, ok
	})

	srv := &http.Server{Addr: cfg.LP.Addr, Handler: mux}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("lp server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// RunGRPC starts the gRPC stream listener when cfg.GRPC.Enabled.
func RunGRPC(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger, reg *Registry, opts []rfc.Option) {
	if !cfg.GRPC.Enabled {
		return
	}

	srv := grpctransport.NewServer(logger, func(conn *grpctransport.Connector) {
		installDemo(conn.Connector)
		reg.PutTracked(uuid.NewString(), conn.Connector)
	}, opts...)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			go func() {
				if err := srv.GRPCServer().Serve(ln); err != nil {
					logger.Error("grpc server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.GRPCServer().GracefulStop()
			return nil
		},
	})
}

// RunWorker connects the AMQP-backed transport when cfg.Worker.Enabled.
func RunWorker(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger, reg *Registry, opts []rfc.Option) {
	if !cfg.Worker.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			wmLogger := watermill.NewSlogLogger(logger)
			pubConfig := wmamqp.NewDurablePubSubConfig(cfg.Worker.AMQPURL, nil)

			publisher, err := wmamqp.NewPublisher(pubConfig, wmLogger)
			if err != nil {
				return fmt.Errorf("worker: new publisher: %w", err)
			}
			subscriber, err := wmamqp.NewSubscriber(pubConfig, wmLogger)
			if err != nil {
				return fmt.Errorf("worker: new subscriber: %w", err)
			}

			conn, err := workertransport.New(ctx, publisher, subscriber, cfg.Worker.SendTopic, logger, nil, opts...)
			if err != nil {
				return fmt.Errorf("worker: new connector: %w", err)
			}
			installDemo(conn.Connector)
			reg.PutTracked(uuid.NewString(), conn.Connector)
			return nil
		},
	})
}

// RunMonitor launches the termui dashboard over reg when
// cfg.Monitor.Enabled, exiting it on OnStop. It runs on the process's own
// terminal, so it only makes sense for a node started attended (not
// under a process supervisor).
func RunMonitor(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger, reg *Registry) {
	if !cfg.Monitor.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				snapshot := func() map[string]monitor.Source {
					out := make(map[string]monitor.Source)
					for id, conn := range reg.Snapshot() {
						out[id] = conn
					}
					return out
				}
				if err := monitor.Run(snapshot, cfg.Monitor.Tick); err != nil {
					logger.Error("monitor: exited", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// monitor.Run exits on its own 'q'/ctrl-c handling; OnStop does
			// not wait for it, since the process is tearing down anyway.
			return nil
		},
	})
}

// RunDiscovery registers this node in Consul when cfg.Discovery.Enabled,
// so a gateway dialing the grpc or tcp transport can find it by service
// name rather than a hardcoded address, and deregisters it on OnStop.
func RunDiscovery(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Discovery.Enabled {
		return
	}

	var registrar *discovery.Registrar
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			r, err := discovery.Register(
				cfg.Discovery.ConsulAddr,
				cfg.ServiceName,
				cfg.ServiceName+"-"+uuid.NewString(),
				cfg.Discovery.ServiceAddr,
				cfg.Discovery.ServicePort,
				cfg.Discovery.TTL,
				logger,
			)
			if err != nil {
				return fmt.Errorf("discovery: register: %w", err)
			}
			registrar = r
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if registrar == nil {
				return nil
			}
			return registrar.Deregister()
		},
	})
}
