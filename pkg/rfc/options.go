package rfc

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Option configures a Communicator at construction time.
type Option func(*Communicator)

// WithLogger overrides the default slog logger used for dispatch warnings
// and send failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Communicator) {
		c.logger = logger
	}
}

// WithCircuitBreaker wraps outbound SendData calls in a sony/gobreaker
// circuit breaker named name: after failureThreshold consecutive SendData
// failures the breaker trips open for openFor, failing new calls
// immediately instead of letting every future call hang on a transport
// that is known to be dead. This does not change what "rejected" means to
// a caller, since callFunction still rejects with an error either way —
// it only fails faster instead of leaving a send failure and an actual
// disconnection indistinguishable to a pending call.
func WithCircuitBreaker(name string, failureThreshold uint32, openFor time.Duration) Option {
	return func(c *Communicator) {
		c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    name,
			Timeout: openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failureThreshold
			},
		})
	}
}

// WithPathCacheSize overrides the dispatch engine's resolved-path LRU
// capacity (default defaultPathCacheSize).
func WithPathCacheSize(size int) Option {
	return func(c *Communicator) {
		if size <= 0 {
			return
		}
		c.engine = newDispatchEngineSize(size)
	}
}
