package destinations

import (
	"encoding/json"
	"fmt"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/domain"
)

// outboundPayload is the per-destination message body: the canonical
// envelope merged with destination identification. The embedded envelope
// contributes its wire fields directly.
type outboundPayload struct {
	domain.Envelope
	DestinationType string `json:"destination_type"`
	DestinationName string `json:"destination_name"`
	DestinationURL  string `json:"destination_url,omitempty"`
	DestinationARN  string `json:"destination_arn,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

// BuildMessage prepares the outbound message for one destination.
func BuildMessage(env domain.Envelope, d Destination) (Message, error) {
	payload := outboundPayload{
		Envelope:        env,
		DestinationType: string(d.Kind),
		DestinationName: d.Name,
		Timestamp:       env.EventTime,
	}
	if d.Kind == KindSNS {
		payload.DestinationARN = d.Address
	} else {
		payload.DestinationURL = d.Address
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message body: %w", err)
	}

	msg := Message{
		Body:       body,
		Attributes: messageAttributes(env),
	}
	if d.Kind == KindSNS {
		msg.Subject = messageSubject(env)
	}
	return msg, nil
}

// messageAttributes returns the flat attribute set attached to every
// publish. Values are never empty; sinks such as SQS reject empty
// attribute values.
func messageAttributes(env domain.Envelope) map[string]string {
	return map[string]string{
		"EventType":  orUnknown(env.EventName),
		"BucketName": orUnknown(env.Bucket),
		"ObjectKey":  orUnknown(env.Key),
		"EventTime":  orUnknown(env.EventTime),
	}
}

func messageSubject(env domain.Envelope) string {
	return fmt.Sprintf("S3 Event: %s - %s", orUnknown(env.EventName), orUnknown(env.Bucket))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
