// Package worker adapts rfc.Communicator to a message broker: rather than
// one persistent socket, Invoke frames are published/consumed as
// Watermill messages over a durable queue pair.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/webitel/rfc-communicator/pkg/rfc"
)

// Connector is a *rfc.Connector whose Transport publishes frames to the
// peer's inbound topic and whose subscription to its own reply topic
// feeds them back into ReplyData. Each node gets its own queue, named
// from the hostname plus a random suffix, so fan-out delivery always
// lands replies on the node that issued the call.
type Connector struct {
	*rfc.Connector

	publisher  message.Publisher
	sendTopic  string
	replyQueue string
	logger     *slog.Logger
	cancel     context.CancelFunc
}

// New builds a worker Connector. publisher publishes to sendTopic (the
// peer's inbound queue); subscriber is subscribed to this node's own
// replyQueue so SendData traffic flowing the other way reaches ReplyData.
func New(
	ctx context.Context,
	publisher message.Publisher,
	subscriber message.Subscriber,
	sendTopic string,
	logger *slog.Logger,
	header any,
	opts ...rfc.Option,
) (*Connector, error) {
	nodeID, err := os.Hostname()
	if err != nil {
		nodeID = watermill.NewShortUUID()
	}
	replyQueue := fmt.Sprintf("rfc.reply.%s.%s", nodeID, uuid.NewString())

	msgs, err := subscriber.Subscribe(ctx, replyQueue)
	if err != nil {
		return nil, fmt.Errorf("worker transport: subscribe %s: %w", replyQueue, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &Connector{
		publisher:  publisher,
		sendTopic:  sendTopic,
		replyQueue: replyQueue,
		logger:     logger,
		cancel:     cancel,
	}
	c.Connector = rfc.NewConnector("WorkerConnector", c, header, opts...)
	c.Connector.SetState(rfc.StateConnecting)
	c.Connector.SetState(rfc.StateOpen)

	go c.consume(runCtx, msgs)
	return c, nil
}

// SendData implements rfc.Transport by publishing one Invoke, tagged with
// this node's reply queue so the remote peer's own outbound frames land
// back here.
func (c *Connector) SendData(ctx context.Context, inv rfc.Invoke) error {
	data, err := rfc.EncodeInvoke(inv)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set("reply-queue", c.replyQueue)
	return c.publisher.Publish(c.sendTopic, msg)
}

func (c *Connector) consume(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			c.Connector.Close(ctx.Err())
			return
		case msg, ok := <-msgs:
			if !ok {
				c.Connector.Close(nil)
				return
			}
			inv, err := rfc.DecodeInvoke(msg.Payload)
			if err != nil {
				c.logger.Warn("worker: dropping malformed frame", "error", err)
				msg.Ack()
				continue
			}
			c.Connector.ReplyData(msg.Context(), inv)
			msg.Ack()
		}
	}
}

// Close stops the consumer goroutine in addition to the usual
// rfc.Connector teardown.
func (c *Connector) Close(err error) {
	c.cancel()
	c.Connector.Close(err)
}
