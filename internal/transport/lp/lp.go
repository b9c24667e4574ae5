// Package lp adapts rfc.Communicator to HTTP long-polling. Each poll both
// delivers any inbound call/reply the client queued in its request body
// and drains up to a batch of outbound frames the server has queued for
// the client.
package lp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/rfc-communicator/pkg/rfc"
)

const (
	pollTimeout  = 30 * time.Second
	drainBatchCap = 15
)

// Connector is a *rfc.Connector whose Transport enqueues frames into an
// internal mailbox that the next HTTP poll drains, since a long-poll
// transport has no persistent socket to write to outside a request.
type Connector struct {
	*rfc.Connector

	mailbox chan rfc.Invoke
}

// New creates a long-poll Connector. It starts in StateOpen immediately:
// unlike a socket handshake, there is no connecting phase — the first poll
// request is itself the first opportunity to exchange frames.
func New(header any, opts ...rfc.Option) *Connector {
	c := &Connector{mailbox: make(chan rfc.Invoke, 256)}
	c.Connector = rfc.NewConnector("LPConnector", c, header, opts...)
	c.Connector.SetState(rfc.StateOpen)
	return c
}

// SendData implements rfc.Transport by queueing inv for the next poll to
// pick up. A full mailbox means the client has stopped polling; the
// connector is then torn down the same way an unreachable socket peer
// would be.
func (c *Connector) SendData(ctx context.Context, inv rfc.Invoke) error {
	select {
	case c.mailbox <- inv:
		return nil
	default:
		c.Connector.Close(errMailboxFull)
		return errMailboxFull
	}
}

var errMailboxFull = &rfc.DispatchError{Listener: "", Reason: "long-poll mailbox full: client stopped polling"}

// Mount registers the long-poll route under /rfc/{connID}/poll on r,
// resolving connID to a live Connector via lookup — the caller owns the
// map from ids to connectors.
func Mount(r chi.Router, lookup func(connID string) (*Connector, bool)) {
	r.Post("/rfc/{connID}/poll", func(w http.ResponseWriter, req *http.Request) {
		connID := chi.URLParam(req, "connID")
		c, ok := lookup(connID)
		if !ok {
			http.Error(w, "unknown connection", http.StatusNotFound)
			return
		}
		c.poll(w, req)
	})
}

func (c *Connector) poll(w http.ResponseWriter, r *http.Request) {
	// Deliver anything the client sent in this request body first.
	var inbound []json.RawMessage
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&inbound); err == nil {
			for _, raw := range inbound {
				if inv, err := rfc.DecodeInvoke(raw); err == nil {
					c.Connector.ReplyData(r.Context(), inv)
				}
			}
		}
	}

	var batch []rfc.Invoke
	select {
	case <-r.Context().Done():
		return
	case <-time.After(pollTimeout):
		w.WriteHeader(http.StatusNoContent)
		return
	case inv := <-c.mailbox:
		batch = append(batch, inv)
	drain:
		for len(batch) < drainBatchCap {
			select {
			case inv := <-c.mailbox:
				batch = append(batch, inv)
			default:
				break drain
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(batch)
}
