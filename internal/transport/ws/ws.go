// Package ws adapts rfc.Communicator to a gorilla/websocket connection.
// It owns only the socket lifecycle and framing; dispatch, the
// pending-call table, and the driver all live in pkg/rfc.
package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/webitel/rfc-communicator/pkg/rfc"
)

// Connector is a *rfc.Connector whose Transport writes frames onto a
// gorilla/websocket connection and whose read pump feeds them back into
// ReplyData.
type Connector struct {
	*rfc.Connector

	conn   *websocket.Conn
	logger *slog.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // caller fronts this with its own auth
}

// Accept upgrades r/w to a WebSocket and returns a ready-to-use Connector.
// header is any opaque value the caller wants surfaced via Header() — e.g.
// the authenticated principal extracted upstream.
func Accept(w http.ResponseWriter, r *http.Request, logger *slog.Logger, header any, opts ...rfc.Option) (*Connector, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	c := &Connector{conn: conn, logger: logger}
	c.Connector = rfc.NewConnector("WSConnector", c, header, opts...)
	c.Connector.SetState(rfc.StateConnecting)
	c.Connector.SetState(rfc.StateOpen)

	go c.readPump(r.Context())
	return c, nil
}

// SendData implements rfc.Transport by writing one encoded Invoke as a
// WebSocket text frame.
func (c *Connector) SendData(ctx context.Context, inv rfc.Invoke) error {
	data, err := rfc.EncodeInvoke(inv)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump decodes every inbound frame and feeds it to ReplyData until the
// socket closes or ctx is cancelled, at which point it closes the
// Connector exactly once, tearing down the Communicator with it.
func (c *Connector) readPump(ctx context.Context) {
	defer c.conn.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Info("ws: read pump closing", "error", err)
			c.Connector.Close(err)
			return
		}

		inv, err := rfc.DecodeInvoke(data)
		if err != nil {
			c.logger.Warn("ws: dropping malformed frame", "error", err)
			continue
		}
		c.Connector.ReplyData(ctx, inv)

		select {
		case <-ctx.Done():
			c.Connector.Close(ctx.Err())
			return
		default:
		}
	}
}
