// Package tcp adapts rfc.Communicator to a raw net.Conn. It frames each
// Invoke with a 4-byte big-endian length prefix so arbitrary JSON payloads
// can be split back out of the TCP byte stream.
package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/webitel/rfc-communicator/pkg/rfc"
	"golang.org/x/sync/errgroup"
)

const maxFrameSize = 16 << 20 // 16MiB, generous for a JSON-equivalent wire schema

// Connector is a *rfc.Connector whose Transport writes length-prefixed
// frames onto a net.Conn. The read pump runs on its own goroutine inside
// an errgroup; writes happen on the calling goroutine, serialized by
// writeM.
type Connector struct {
	*rfc.Connector

	conn   net.Conn
	writeM sync.Mutex
	logger *slog.Logger
}

// Dial opens conn as the caller side of a TCP connector.
func Dial(ctx context.Context, conn net.Conn, logger *slog.Logger, header any, opts ...rfc.Option) *Connector {
	c := &Connector{conn: conn, logger: logger}
	c.Connector = rfc.NewConnector("TCPConnector", c, header, opts...)
	c.Connector.SetState(rfc.StateConnecting)
	c.Connector.SetState(rfc.StateOpen)
	go c.run(ctx)
	return c
}

// SendData implements rfc.Transport by writing one length-prefixed frame.
// Writes are serialized with a mutex since net.Conn.Write is not safe for
// concurrent callers and multiple outbound calls may race to send.
func (c *Connector) SendData(ctx context.Context, inv rfc.Invoke) error {
	data, err := rfc.EncodeInvoke(inv)
	if err != nil {
		return err
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("tcp: frame of %d bytes exceeds %d byte limit", len(data), maxFrameSize)
	}

	c.writeM.Lock()
	defer c.writeM.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

// run drives the read pump inside an errgroup so a read failure and a
// context cancellation both converge on exactly one Close call.
func (c *Connector) run(ctx context.Context) {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(gCtx) })

	err := g.Wait()
	c.conn.Close()
	c.Connector.Close(err)
}

func (c *Connector) readPump(ctx context.Context) error {
	r := bufio.NewReader(c.conn)
	for {
		var header [4]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return err
		}
		size := binary.BigEndian.Uint32(header[:])
		if size > maxFrameSize {
			return fmt.Errorf("tcp: peer announced %d byte frame over the %d byte limit", size, maxFrameSize)
		}

		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}

		var inv rfc.Invoke
		if err := json.Unmarshal(buf, &rawEnvelope{&inv}); err != nil {
			c.logger.Warn("tcp: dropping malformed frame", "error", err)
			continue
		}
		c.Connector.ReplyData(ctx, inv)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// rawEnvelope adapts rfc.DecodeInvoke (which takes raw bytes, not a
// json.Unmarshaler) into the json.Unmarshaler interface readPump wants,
// without re-reading the buffer twice.
type rawEnvelope struct {
	inv *rfc.Invoke
}

func (e *rawEnvelope) UnmarshalJSON(data []byte) error {
	inv, err := rfc.DecodeInvoke(data)
	if err != nil {
		return err
	}
	*e.inv = inv
	return nil
}
