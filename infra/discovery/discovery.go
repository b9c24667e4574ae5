// Package discovery registers a running communicator node in Consul so
// other nodes (or a gateway dialing into the grpc/tcp transports) can find
// it, and deregisters it again on shutdown.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
)

// Registrar owns the Consul client and the TTL check goroutine that keeps
// a registration alive for as long as the process runs.
type Registrar struct {
	client    *api.Client
	serviceID string
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// Register registers serviceName under serviceID at addr:port with
// Consul running at consulAddr, and starts passing a TTL health check
// every ttl/2 so Consul considers the node healthy while it is alive.
func Register(consulAddr, serviceName, serviceID, addr string, port int, ttl time.Duration, logger *slog.Logger) (*Registrar, error) {
	cfg := api.DefaultConfig()
	cfg.Address = consulAddr
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: new consul client: %w", err)
	}

	checkID := "service:" + serviceID
	reg := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: addr,
		Port:    port,
		Check: &api.AgentServiceCheck{
			CheckID:                        checkID,
			TTL:                            ttl.String(),
			DeregisterCriticalServiceAfter: (ttl * 10).String(),
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return nil, fmt.Errorf("discovery: register service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registrar{client: client, serviceID: serviceID, logger: logger, cancel: cancel}
	go r.pass(ctx, checkID, ttl)
	return r, nil
}

func (r *Registrar) pass(ctx context.Context, checkID string, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.client.Agent().PassTTL(checkID, ""); err != nil {
				r.logger.Warn("discovery: pass TTL failed", "error", err)
			}
		}
	}
}

// Deregister stops the TTL goroutine and removes the service from Consul.
func (r *Registrar) Deregister() error {
	r.cancel()
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("discovery: deregister service: %w", err)
	}
	return nil
}
