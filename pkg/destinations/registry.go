package destinations

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Registry resolves the sender serving a destination's kind.
type Registry interface {
	Register(kind Kind, s Sender)
	SenderFor(d Destination) (Sender, error)
	Close() error
}

type registry struct {
	mu      sync.RWMutex
	senders map[Kind]Sender
}

// NewRegistry returns a registry with optional pre-registered senders.
func NewRegistry(senders map[Kind]Sender) Registry {
	r := &registry{senders: make(map[Kind]Sender)}
	for kind, s := range senders {
		r.Register(kind, s)
	}
	return r
}

// Register associates a sender with a destination kind.
func (r *registry) Register(kind Kind, s Sender) {
	if kind == "" || s == nil {
		return
	}
	r.mu.Lock()
	r.senders[kind] = s
	r.mu.Unlock()
}

// SenderFor returns the sender registered for the destination's kind.
func (r *registry) SenderFor(d Destination) (Sender, error) {
	r.mu.RLock()
	s := r.senders[d.Kind]
	r.mu.RUnlock()

	if s == nil {
		return nil, fmt.Errorf("no sender registered for kind %q", d.Kind)
	}
	return s, nil
}

// Close releases senders that hold connections.
func (r *registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, s := range r.senders {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// topicRouter serves the topic kind, splitting traffic between SNS and
// Pub/Sub on the address shape.
type topicRouter struct {
	sns    Sender
	pubsub Sender
}

func (t *topicRouter) Send(ctx context.Context, d Destination, msg Message) (string, error) {
	if IsPubSubAddress(d.Address) && t.pubsub != nil {
		return t.pubsub.Send(ctx, d, msg)
	}
	return t.sns.Send(ctx, d, msg)
}

func (t *topicRouter) Close() error {
	var firstErr error
	for _, s := range []Sender{t.sns, t.pubsub} {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SenderOptions configures DefaultRegistry's sender construction.
type SenderOptions struct {
	AWS            AWSOptions
	GCPCredsFile   string
	WebhookTimeout time.Duration
}

// DefaultRegistry wires up senders for every supported kind.
func DefaultRegistry(ctx context.Context, opts SenderOptions, log Logger) (Registry, error) {
	sqsSender, err := newAWSSQSSender(ctx, opts.AWS, log)
	if err != nil {
		return nil, err
	}
	snsSender, err := newAWSSNSSender(ctx, opts.AWS, log)
	if err != nil {
		return nil, err
	}

	return NewRegistry(map[Kind]Sender{
		KindSQS: sqsSender,
		KindSNS: &topicRouter{
			sns:    snsSender,
			pubsub: newGCPPubSubSender(opts.GCPCredsFile, log),
		},
		KindWebhook: newWebhookSender(opts.WebhookTimeout, log),
	}), nil
}
