package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
)

// NATSConsumer subscribes to a notification subject and forwards every
// message through the engine. When a message carries a reply subject the
// invocation result is published back on it.
type NATSConsumer struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	proc    Processor
	log     logger.Logger
}

func NewNATSConsumer(url, subject string, proc Processor, log logger.Logger) (*NATSConsumer, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSConsumer{
		conn:    conn,
		subject: subject,
		proc:    proc,
		log:     ensureLogger(log),
	}, nil
}

// Start subscribes to the configured subject.
func (c *NATSConsumer) Start() error {
	sub, err := c.conn.Subscribe(c.subject, c.handleMsg)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.subject, err)
	}
	c.sub = sub
	c.log.InfoObj("nats consumer started", "nats_subject", c.subject)
	return nil
}

// Stop unsubscribes and closes the connection.
func (c *NATSConsumer) Stop() error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			return err
		}
		c.sub = nil
	}
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func (c *NATSConsumer) handleMsg(msg *nats.Msg) {
	reply := c.process(msg.Data)
	if msg.Reply == "" || reply == nil {
		return
	}
	if err := c.conn.Publish(msg.Reply, reply); err != nil {
		c.log.WarnObj("nats reply failed", "nats_reply_error", map[string]interface{}{
			"subject": msg.Reply,
			"error":   err.Error(),
		})
	}
}

// process runs one invocation and renders the reply body.
func (c *NATSConsumer) process(payload []byte) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := c.proc.Process(ctx, "nats", payload)
	if err != nil {
		c.log.WarnObj("nats invocation failed", "nats_ingest_error", map[string]interface{}{
			"error": err.Error(),
		})
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return body
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return body
}
