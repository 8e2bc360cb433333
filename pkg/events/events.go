package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/domain"
)

// Result is the normalization product of one input record. Err is non-nil
// when the record could not be normalized; the envelope is only valid when
// Err is nil.
type Result struct {
	Index    int
	Envelope domain.Envelope
	Err      error
}

// SplitBatch unwraps a notification payload into its records. A Records
// array yields its elements; a bare JSON object is treated as a
// single-record batch, which is how EventBridge deliveries arrive.
func SplitBatch(payload []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("empty notification payload")
	}

	var batch struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, fmt.Errorf("decode notification payload: %w", err)
	}
	if batch.Records != nil {
		return batch.Records, nil
	}

	if trimmed[0] != '{' {
		return nil, errors.New("notification payload is not an object")
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// Normalize converts each record independently, producing exactly one
// result per record in input order. A record that fails never prevents the
// records after it from being processed.
func Normalize(records []json.RawMessage) []Result {
	results := make([]Result, len(records))
	for i, raw := range records {
		env, err := NormalizeRecord(raw)
		results[i] = Result{Index: i, Envelope: env, Err: err}
	}
	return results
}

// NormalizeRecord detects the record's shape and maps it onto the canonical
// envelope. The original record is retained verbatim in the envelope.
func NormalizeRecord(raw json.RawMessage) (domain.Envelope, error) {
	var rec s3Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Envelope{}, fmt.Errorf("decode record: %w", err)
	}

	if rec.EventSource == "aws:s3" {
		if rec.S3.Bucket.Name == "" || rec.S3.Object.Key == "" {
			return domain.Envelope{}, errors.New("s3 record missing bucket name or object key")
		}
		return domain.Envelope{
			EventType:   domain.EventTypeS3,
			EventName:   rec.EventName,
			Bucket:      rec.S3.Bucket.Name,
			Key:         rec.S3.Object.Key,
			EventTime:   rec.EventTime,
			EventSource: rec.EventSource,
			Region:      rec.Region,
			Raw:         raw,
			ForwardedAt: time.Now().UTC(),
		}, nil
	}

	var bridge bridgeRecord
	if err := json.Unmarshal(raw, &bridge); err != nil {
		return domain.Envelope{}, fmt.Errorf("decode record: %w", err)
	}

	switch {
	case strings.HasPrefix(bridge.DetailType, "Object ") && bridge.Detail.Bucket.Name != "":
		if bridge.Detail.Object.Key == "" {
			return domain.Envelope{}, errors.New("object event missing object key")
		}
		return domain.Envelope{
			EventType:   domain.EventTypeS3,
			EventName:   compactDetailType(bridge.DetailType),
			Bucket:      bridge.Detail.Bucket.Name,
			Key:         bridge.Detail.Object.Key,
			EventTime:   bridge.Time,
			EventSource: "aws:s3",
			Region:      bridge.Region,
			Raw:         raw,
			ForwardedAt: time.Now().UTC(),
		}, nil

	case bridge.Source == "aws.s3":
		params := bridge.Detail.RequestParameters
		if params.BucketName == "" || params.Key == "" {
			return domain.Envelope{}, errors.New("api call record missing bucket name or object key")
		}
		name := bridge.Detail.EventName
		if name == "" {
			name = "Unknown"
		}
		return domain.Envelope{
			EventType:   domain.EventTypeS3,
			EventName:   name,
			Bucket:      params.BucketName,
			Key:         params.Key,
			EventTime:   bridge.Time,
			EventSource: bridge.Source,
			Region:      bridge.Region,
			Raw:         raw,
			ForwardedAt: time.Now().UTC(),
		}, nil
	}

	return domain.Envelope{}, errors.New("unrecognized event record shape")
}

// compactDetailType maps a detail-type such as "Object Created:Put" onto
// the record-style event name "ObjectCreated:Put".
func compactDetailType(detailType string) string {
	return strings.Replace(detailType, " ", "", 1)
}
