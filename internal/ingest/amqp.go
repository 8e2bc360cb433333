package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/engine"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
)

const amqpConnTimeout = 10 * time.Second

// AMQPConsumer reads bucket notifications from a RabbitMQ queue. Deliveries
// are acked once processed. Engine failures nack with requeue so another
// consumer can retry; malformed payloads are acked and dropped since
// requeueing cannot repair them.
type AMQPConsumer struct {
	url   string
	queue string
	proc  Processor
	log   logger.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	started bool
	closed  chan struct{}
	done    chan struct{}
}

func NewAMQPConsumer(url, queue string, proc Processor, log logger.Logger) *AMQPConsumer {
	return &AMQPConsumer{
		url:    url,
		queue:  queue,
		proc:   proc,
		log:    ensureLogger(log),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the consume loop, which redials with backoff until Stop is
// called.
func (c *AMQPConsumer) Start() error {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.run()
	return nil
}

// Stop terminates the consume loop and closes the connection.
func (c *AMQPConsumer) Stop() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}

	c.mu.Lock()
	conn := c.conn
	started := c.started
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if started {
		<-c.done
	}
	return nil
}

func (c *AMQPConsumer) run() {
	defer close(c.done)
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		if err := c.consume(); err != nil {
			c.log.WarnObj("amqp consume interrupted", "amqp_error", map[string]interface{}{
				"queue": c.queue,
				"error": err.Error(),
			})
		}

		select {
		case <-c.closed:
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// consume dials, declares the queue and processes deliveries until the
// connection drops or Stop is called.
func (c *AMQPConsumer) consume() error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Properties: amqp.Table{"product": clientName},
		Dial:       amqp.DefaultDial(amqpConnTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}

	deliveries, err := ch.Consume(c.queue, clientName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.log.InfoObj("amqp consumer started", "amqp_queue", c.queue)

	for {
		select {
		case <-c.closed:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(d)
		}
	}
}

func (c *AMQPConsumer) handleDelivery(d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := c.proc.Process(ctx, "amqp", d.Body)
	if err != nil && !errors.Is(err, engine.ErrInvalidPayload) {
		c.log.WarnObj("amqp invocation failed", "amqp_ingest_error", map[string]interface{}{
			"error": err.Error(),
		})
		if nerr := d.Nack(false, true); nerr != nil {
			c.log.WarnObj("amqp nack failed", "amqp_error", map[string]interface{}{
				"error": nerr.Error(),
			})
		}
		return
	}
	if err != nil {
		c.log.WarnObj("amqp payload dropped", "amqp_ingest_error", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if aerr := d.Ack(false); aerr != nil {
		c.log.WarnObj("amqp ack failed", "amqp_error", map[string]interface{}{
			"error": aerr.Error(),
		})
	}
}
