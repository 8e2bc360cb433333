package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/engine"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
)

// kafkaReader is the subset of kafka.Reader the consumer needs, kept small
// so tests can substitute a fake.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads bucket notifications from a topic as part of a
// consumer group. Offsets are committed only after an invocation completes,
// so a crash or rebalance redelivers unprocessed messages.
type KafkaConsumer struct {
	reader kafkaReader
	topic  string
	group  string
	proc   Processor
	log    logger.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewKafkaConsumer(brokers []string, topic, group string, proc Processor, log logger.Logger) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c := newKafkaConsumer(r, proc, log)
	c.topic = topic
	c.group = group
	return c
}

func newKafkaConsumer(r kafkaReader, proc Processor, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: r,
		proc:   proc,
		log:    ensureLogger(log),
		done:   make(chan struct{}),
	}
}

// Start launches the fetch loop.
func (c *KafkaConsumer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
	return nil
}

// Stop cancels the fetch loop and closes the reader.
func (c *KafkaConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
	return c.reader.Close()
}

func (c *KafkaConsumer) run(ctx context.Context) {
	defer close(c.done)
	c.log.InfoObj("kafka consumer started", "kafka_consumer", map[string]interface{}{
		"topic": c.topic,
		"group": c.group,
	})

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.WarnObj("kafka fetch failed", "kafka_error", map[string]interface{}{
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.handleMessage(ctx, m)
	}
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, m kafka.Message) {
	_, err := c.proc.Process(ctx, "kafka", m.Value)
	if err != nil && !errors.Is(err, engine.ErrInvalidPayload) {
		c.log.WarnObj("kafka invocation failed", "kafka_ingest_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		c.log.WarnObj("kafka payload dropped", "kafka_ingest_error", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if cerr := c.reader.CommitMessages(ctx, m); cerr != nil {
		c.log.WarnObj("kafka commit failed", "kafka_error", map[string]interface{}{
			"error": cerr.Error(),
		})
	}
}
