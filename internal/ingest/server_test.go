package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/engine"
)

type fakeProcessor struct {
	result    engine.InvocationResult
	err       error
	transport string
	payload   []byte
	calls     int
}

func (f *fakeProcessor) Process(_ context.Context, transport string, payload []byte) (engine.InvocationResult, error) {
	f.calls++
	f.transport = transport
	f.payload = payload
	if f.err != nil {
		return engine.InvocationResult{}, f.err
	}
	return f.result, nil
}

func TestServerHandleEventsSuccess(t *testing.T) {
	proc := &fakeProcessor{result: engine.InvocationResult{
		InvocationID: "inv-1",
		Records:      1,
		Message:      "Processed 1 records: 1 successful, 0 failed",
	}}
	srv := NewServer(":0", proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"Records": []}`))
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %s", ct)
	}
	var res engine.InvocationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.InvocationID != "inv-1" {
		t.Fatalf("InvocationID = %s", res.InvocationID)
	}
	if proc.transport != "http" {
		t.Fatalf("transport = %s", proc.transport)
	}
	if string(proc.payload) != `{"Records": []}` {
		t.Fatalf("payload = %s", proc.payload)
	}
}

func TestServerHandleEventsInvalidPayload(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("%w: decode failed", engine.ErrInvalidPayload)}
	srv := NewServer(":0", proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("error body missing: %s", rec.Body.String())
	}
}

func TestServerHandleEventsEngineFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("destinations config gone")}
	srv := NewServer(":0", proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestServerHandleEventsMethodNotAllowed(t *testing.T) {
	proc := &fakeProcessor{}
	srv := NewServer(":0", proc, nil)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if proc.calls != 0 {
		t.Fatalf("processor should not run on GET")
	}
}

func TestServerHandleEventsEmptyBody(t *testing.T) {
	proc := &fakeProcessor{}
	srv := NewServer(":0", proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if proc.calls != 0 {
		t.Fatalf("processor should not run on an empty body")
	}
}

func TestServerHealthEndpoints(t *testing.T) {
	srv := NewServer(":0", &fakeProcessor{}, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv := NewServer(":0", &fakeProcessor{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("metrics body is empty")
	}
}
