package destinations

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// gcpPubSubSender delivers topic-kind destinations whose address is a
// Pub/Sub topic path (projects/<project>/topics/<topic>). Clients and topic
// handles are created lazily and cached per project/address.
type gcpPubSubSender struct {
	mu      sync.Mutex
	clients map[string]*pubsub.Client
	topics  map[string]*pubsub.Topic
	opts    []option.ClientOption
	log     Logger
}

// newGCPPubSubSender creates a Pub/Sub sender. credsFile optionally points
// at a service-account key; when empty the ambient credentials are used.
func newGCPPubSubSender(credsFile string, log Logger) *gcpPubSubSender {
	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	return &gcpPubSubSender{
		clients: make(map[string]*pubsub.Client),
		topics:  make(map[string]*pubsub.Topic),
		opts:    opts,
		log:     ensureLogger(log),
	}
}

// Send publishes the message to the destination topic and waits for the
// server-assigned id.
func (g *gcpPubSubSender) Send(ctx context.Context, d Destination, msg Message) (string, error) {
	topic, err := g.topicFor(ctx, d.Address)
	if err != nil {
		return "", err
	}

	res := topic.Publish(ctx, &pubsub.Message{
		Data:       msg.Body,
		Attributes: msg.Attributes,
	})
	id, err := res.Get(ctx)
	if err != nil {
		g.log.ErrorObj("pubsub publish failed", "destination_pubsub_error", map[string]any{
			"destination": d.Name,
			"error":       err.Error(),
		})
		return "", fmt.Errorf("publish to pubsub: %w", err)
	}

	g.log.DebugObj("pubsub delivered message", "destination_pubsub_delivery", map[string]any{
		"destination": d.Name,
		"message_id":  id,
	})
	return id, nil
}

func (g *gcpPubSubSender) topicFor(ctx context.Context, address string) (*pubsub.Topic, error) {
	project, topicID, ok := splitPubSubAddress(address)
	if !ok {
		return nil, fmt.Errorf("invalid pubsub topic address %q", address)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.topics[address]; ok {
		return t, nil
	}

	client, ok := g.clients[project]
	if !ok {
		c, err := pubsub.NewClient(ctx, project, g.opts...)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client for project %s: %w", project, err)
		}
		g.clients[project] = c
		client = c
	}

	t := client.Topic(topicID)
	g.topics[address] = t
	return t, nil
}

// Close stops pending topic publishers and releases the cached clients.
func (g *gcpPubSubSender) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range g.topics {
		t.Stop()
	}
	g.topics = make(map[string]*pubsub.Topic)

	var firstErr error
	for _, c := range g.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.clients = make(map[string]*pubsub.Client)
	return firstErr
}

// IsPubSubAddress reports whether the address names a Pub/Sub topic rather
// than an SNS ARN.
func IsPubSubAddress(address string) bool {
	_, _, ok := splitPubSubAddress(address)
	return ok
}

func splitPubSubAddress(address string) (project, topic string, ok bool) {
	parts := strings.Split(address, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" {
		return "", "", false
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
