package cmd

import (
	"sync"

	"github.com/webitel/rfc-communicator/pkg/rfc"
)

// Registry tracks live connectors by id, the role the teacher's
// service.Deliverer registry plays for ws/lp subscribers: every transport
// records the connectors it accepts here, and the monitor dashboard
// enumerates everything currently open. The long-poll route looks ids up
// in its own map of lp connectors, not through Registry.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*rfc.Connector
}

// NewRegistry builds an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*rfc.Connector)}
}

// Put installs conn under id, replacing whatever was there before.
func (r *Registry) Put(id string, conn *rfc.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = conn
}

// Get looks up a connector by id.
func (r *Registry) Get(id string) (*rfc.Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Remove deletes id from the registry, typically called from a
// connector's teardown path.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// PutTracked installs conn under id and spawns a goroutine that removes it
// again once conn's Communicator is destroyed, so the registry (and the
// monitor dashboard reading it) never accumulates entries for connections
// that have already torn down.
func (r *Registry) PutTracked(id string, conn *rfc.Connector) {
	r.Put(id, conn)
	go func() {
		conn.Join()
		r.Remove(id)
	}()
}

// Snapshot returns a point-in-time copy of the registry, keyed by id, for
// the monitor dashboard to render without holding the registry lock while
// it draws.
func (r *Registry) Snapshot() map[string]*rfc.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*rfc.Connector, len(r.conns))
	for k, v := range r.conns {
		out[k] = v
	}
	return out
}
