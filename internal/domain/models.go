package domain

// Domain contains core models shared across the forwarder.

import (
	"encoding/json"
	"time"
)

// EventTypeS3 tags every envelope produced from an object-storage notification.
const EventTypeS3 = "s3_event"

// Envelope is the canonical form of one object-storage change record. The
// JSON field names are the wire contract consumed by downstream sinks, so
// they stay stable even when the Go names do not.
type Envelope struct {
	EventType   string          `json:"event_type"`
	EventName   string          `json:"event_name"`
	Bucket      string          `json:"bucket_name"`
	Key         string          `json:"object_key"`
	EventTime   string          `json:"event_time,omitempty"`
	EventSource string          `json:"event_source,omitempty"`
	Region      string          `json:"aws_region,omitempty"`
	Raw         json.RawMessage `json:"raw_event,omitempty"`
	ForwardedAt time.Time       `json:"forwarded_at"`
}
