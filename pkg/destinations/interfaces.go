package destinations

import "context"

// Message is one prepared outbound publish: the serialized body, the
// flat attribute set every sink carries, and the subject line used by
// topic sinks.
type Message struct {
	Body       []byte
	Attributes map[string]string
	Subject    string
}

// Sender delivers a prepared message to one destination address. A sender
// serves every destination of its kind; the destination carries the address.
// Send returns the sink-assigned message id when the sink provides one.
type Sender interface {
	Send(ctx context.Context, d Destination, msg Message) (string, error)
}
