package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/engine"
)

type fakeKafkaReader struct {
	messages []kafka.Message
	fetched  int
	commits  []kafka.Message
	closed   bool
}

func (f *fakeKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.fetched >= len(f.messages) {
		return kafka.Message{}, context.Canceled
	}
	m := f.messages[f.fetched]
	f.fetched++
	return m, nil
}

func (f *fakeKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeKafkaReader) Close() error {
	f.closed = true
	return nil
}

func TestKafkaHandleMessageCommitsOnSuccess(t *testing.T) {
	proc := &fakeProcessor{}
	reader := &fakeKafkaReader{}
	c := newKafkaConsumer(reader, proc, nil)

	c.handleMessage(context.Background(), kafka.Message{Value: []byte(`{"Records": []}`)})

	if len(reader.commits) != 1 {
		t.Fatalf("commits = %d", len(reader.commits))
	}
	if proc.transport != "kafka" {
		t.Fatalf("transport = %s", proc.transport)
	}
}

func TestKafkaHandleMessageSkipsCommitOnEngineFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("config gone")}
	reader := &fakeKafkaReader{}
	c := newKafkaConsumer(reader, proc, nil)

	c.handleMessage(context.Background(), kafka.Message{Value: []byte(`{}`)})

	if len(reader.commits) != 0 {
		t.Fatalf("engine failure should leave the offset uncommitted, commits = %d", len(reader.commits))
	}
}

func TestKafkaHandleMessageCommitsInvalidPayloadAway(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("%w: decode failed", engine.ErrInvalidPayload)}
	reader := &fakeKafkaReader{}
	c := newKafkaConsumer(reader, proc, nil)

	c.handleMessage(context.Background(), kafka.Message{Value: []byte("garbage")})

	if len(reader.commits) != 1 {
		t.Fatalf("invalid payload should be committed away, commits = %d", len(reader.commits))
	}
}

func TestKafkaRunLoopDrainsAndStops(t *testing.T) {
	proc := &fakeProcessor{}
	reader := &fakeKafkaReader{messages: []kafka.Message{
		{Value: []byte(`{"Records": []}`)},
		{Value: []byte(`{"Records": []}`)},
	}}
	c := newKafkaConsumer(reader, proc, nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run loop did not drain")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if proc.calls != 2 || len(reader.commits) != 2 {
		t.Fatalf("calls/commits = %d/%d", proc.calls, len(reader.commits))
	}
	if !reader.closed {
		t.Fatalf("Stop should close the reader")
	}
}

func TestKafkaStopWithoutStart(t *testing.T) {
	reader := &fakeKafkaReader{}
	c := newKafkaConsumer(reader, &fakeProcessor{}, nil)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop without start: %v", err)
	}
	if !reader.closed {
		t.Fatalf("reader should be closed")
	}
}
