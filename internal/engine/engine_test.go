package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/config"
	"github.com/nimbus-works/nimbus-event-forwarder/pkg/destinations"
)

const batchPayload = `{
  "Records": [
    {
      "eventSource": "aws:s3",
      "awsRegion": "us-east-1",
      "eventTime": "2024-06-01T10:00:00.000Z",
      "eventName": "ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "photos"},
        "object": {"key": "cats/cat.jpg"}
      }
    },
    {
      "source": "aws.s3",
      "time": "2024-06-01T10:10:00Z",
      "region": "us-west-2",
      "detail": {
        "eventName": "PutObject",
        "requestParameters": {"bucketName": "logs", "key": "app.log"}
      }
    }
  ]
}`

type fakeSender struct {
	err   error
	calls int
}

func (f *fakeSender) Send(context.Context, destinations.Destination, destinations.Message) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "fake-id", nil
}

func clearDestEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		destinations.EnvConfig,
		destinations.EnvQueues,
		destinations.EnvTopics,
		destinations.EnvWebhooks,
	} {
		t.Setenv(key, "")
	}
}

func writeDestFile(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "destinations.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write destinations file: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T, path, policy string, senders map[destinations.Kind]destinations.Sender) *Engine {
	t.Helper()
	cfg := &config.Config{
		DestinationsFile: path,
		ReloadPolicy:     policy,
	}
	eng, err := NewEngine(cfg, destinations.NewRegistry(senders), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestProcessForwardsBatch(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{
  "sqs_queues": [{"name": "q1", "url": "https://sqs.example.com/q1"}],
  "sns_topics": [{"name": "t1", "arn": "arn:aws:sns:us-east-1:1:t1"}]
}`)
	sqsStub := &fakeSender{}
	snsStub := &fakeSender{}
	eng := newTestEngine(t, path, config.ReloadStartup, map[destinations.Kind]destinations.Sender{
		destinations.KindSQS: sqsStub,
		destinations.KindSNS: snsStub,
	})

	res, err := eng.Process(context.Background(), "http", []byte(batchPayload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.InvocationID == "" {
		t.Fatalf("missing invocation id")
	}
	if res.Records != 2 || res.RecordsSucceeded != 2 || res.RecordsFailed != 0 {
		t.Fatalf("record counts = %d/%d/%d", res.Records, res.RecordsSucceeded, res.RecordsFailed)
	}
	if res.EnabledDestinations != 2 {
		t.Fatalf("EnabledDestinations = %d", res.EnabledDestinations)
	}
	if res.Message != "Processed 2 records: 2 successful, 0 failed" {
		t.Fatalf("Message = %q", res.Message)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 record results, got %d", len(res.Results))
	}
	first := res.Results[0]
	if first.Bucket != "photos" || first.EventName != "ObjectCreated:Put" {
		t.Fatalf("first record identity = %s/%s", first.Bucket, first.EventName)
	}
	if len(first.Outcomes) != 2 || first.Summary.Succeeded != 2 {
		t.Fatalf("first record outcomes = %+v", first)
	}
	if sqsStub.calls != 2 || snsStub.calls != 2 {
		t.Fatalf("sender calls = %d/%d", sqsStub.calls, snsStub.calls)
	}
}

func TestProcessPartialFailureDoesNotError(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{
  "sqs_queues": [{"name": "q1", "url": "https://sqs.example.com/q1"}],
  "sns_topics": [{"name": "t1", "arn": "arn:aws:sns:us-east-1:1:t1"}]
}`)
	eng := newTestEngine(t, path, config.ReloadStartup, map[destinations.Kind]destinations.Sender{
		destinations.KindSQS: &fakeSender{err: errors.New("sqs down")},
		destinations.KindSNS: &fakeSender{},
	})

	res, err := eng.Process(context.Background(), "http", []byte(batchPayload))
	if err != nil {
		t.Fatalf("partial failure must not fail the invocation: %v", err)
	}
	if res.RecordsSucceeded != 0 || res.RecordsFailed != 2 {
		t.Fatalf("record counts = %d/%d", res.RecordsSucceeded, res.RecordsFailed)
	}
	for _, rr := range res.Results {
		if rr.Summary.Failed != 1 || rr.Summary.Succeeded != 1 {
			t.Fatalf("per-record summary = %+v", rr.Summary)
		}
	}
}

func TestProcessNormalizationErrorIsolated(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{
  "sqs_queues": [{"name": "q1", "url": "https://sqs.example.com/q1"}]
}`)
	stub := &fakeSender{}
	eng := newTestEngine(t, path, config.ReloadStartup, map[destinations.Kind]destinations.Sender{
		destinations.KindSQS: stub,
	})

	payload := `{"Records": [{"hello": "world"}, {
  "eventSource": "aws:s3",
  "eventName": "ObjectCreated:Put",
  "s3": {"bucket": {"name": "b"}, "object": {"key": "k"}}
}]}`
	res, err := eng.Process(context.Background(), "http", []byte(payload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.NormalizationErrors != 1 {
		t.Fatalf("NormalizationErrors = %d", res.NormalizationErrors)
	}
	if res.RecordsSucceeded != 1 || res.RecordsFailed != 1 {
		t.Fatalf("record counts = %d/%d", res.RecordsSucceeded, res.RecordsFailed)
	}
	if res.Results[0].Error == "" || len(res.Results[0].Outcomes) != 0 {
		t.Fatalf("bad record should carry the error and no outcomes: %+v", res.Results[0])
	}
	if stub.calls != 1 {
		t.Fatalf("only the good record should dispatch, calls = %d", stub.calls)
	}
}

func TestProcessInvalidPayload(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{"sqs_queues": [{"name": "q1", "url": "u"}]}`)
	eng := newTestEngine(t, path, config.ReloadStartup, nil)

	_, err := eng.Process(context.Background(), "http", []byte("not json"))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}

	_, err = eng.Process(context.Background(), "http", nil)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("empty payload should be invalid, got %v", err)
	}
}

func TestProcessEmptySnapshotStillSucceeds(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{
  "sqs_queues": [{"name": "q1", "url": "https://sqs.example.com/q1", "enabled": false}]
}`)
	eng := newTestEngine(t, path, config.ReloadStartup, nil)

	res, err := eng.Process(context.Background(), "http", []byte(batchPayload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.EnabledDestinations != 0 {
		t.Fatalf("EnabledDestinations = %d", res.EnabledDestinations)
	}
	if res.RecordsSucceeded != 2 {
		t.Fatalf("records with nothing to deliver still succeed: %+v", res)
	}
}

func TestReloadAlwaysPicksUpFileChange(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{"sqs_queues": [{"name": "q1", "url": "u1"}]}`)
	eng := newTestEngine(t, path, config.ReloadAlways, map[destinations.Kind]destinations.Sender{
		destinations.KindSQS: &fakeSender{},
	})

	res, err := eng.Process(context.Background(), "http", []byte(batchPayload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.EnabledDestinations != 1 {
		t.Fatalf("EnabledDestinations = %d", res.EnabledDestinations)
	}

	raw := `{"sqs_queues": [{"name": "q1", "url": "u1"}, {"name": "q2", "url": "u2"}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("rewrite destinations file: %v", err)
	}

	res, err = eng.Process(context.Background(), "http", []byte(batchPayload))
	if err != nil {
		t.Fatalf("Process after rewrite: %v", err)
	}
	if res.EnabledDestinations != 2 {
		t.Fatalf("always policy should see the new config, got %d", res.EnabledDestinations)
	}
}

func TestReloadStartupNeedsExplicitReload(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{"sqs_queues": [{"name": "q1", "url": "u1"}]}`)
	eng := newTestEngine(t, path, config.ReloadStartup, map[destinations.Kind]destinations.Sender{
		destinations.KindSQS: &fakeSender{},
	})

	raw := `{"sqs_queues": [{"name": "q1", "url": "u1"}, {"name": "q2", "url": "u2"}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("rewrite destinations file: %v", err)
	}

	res, err := eng.Process(context.Background(), "http", []byte(batchPayload))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.EnabledDestinations != 1 {
		t.Fatalf("startup policy should keep the cached config, got %d", res.EnabledDestinations)
	}

	if err := eng.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	res, err = eng.Process(context.Background(), "http", []byte(batchPayload))
	if err != nil {
		t.Fatalf("Process after reload: %v", err)
	}
	if res.EnabledDestinations != 2 {
		t.Fatalf("reload should swap in the new config, got %d", res.EnabledDestinations)
	}
}

func TestNewEngineFailsOnFatalConfig(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{broken`)

	cfg := &config.Config{DestinationsFile: path, ReloadPolicy: config.ReloadStartup}
	if _, err := NewEngine(cfg, destinations.NewRegistry(nil), nil); err == nil {
		t.Fatalf("expected error for unparseable destinations file")
	}
}

func TestVerificationReportsCurrentConfig(t *testing.T) {
	clearDestEnv(t)
	path := writeDestFile(t, `{
  "sqs_queues": [{"name": "q1", "url": "https://sqs.example.com/q1"}]
}`)
	eng := newTestEngine(t, path, config.ReloadStartup, nil)

	report := eng.Verification()
	if report.Source != "file:"+path {
		t.Fatalf("Source = %s", report.Source)
	}
	if len(report.Enabled) != 1 || report.Enabled[0].Name != "q1" {
		t.Fatalf("Enabled = %#v", report.Enabled)
	}
	if !strings.Contains(report.Summary(), "Currently Enabled Destinations:") {
		t.Fatalf("summary missing header:\n%s", report.Summary())
	}
}
