package destinations

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookSenderSuccess(t *testing.T) {
	var received bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("X-BucketName"); got != "photos" {
			t.Fatalf("missing attribute header, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"bucket_name":"photos"}` {
			t.Fatalf("unexpected body: %s", body)
		}
		received = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := newWebhookSender(2*time.Second, noopLogger{})
	d := Destination{Name: "hook", Kind: KindWebhook, Address: srv.URL}

	id, err := sender.Send(context.Background(), d, Message{
		Body:       []byte(`{"bucket_name":"photos"}`),
		Attributes: map[string]string{"BucketName": "photos"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "" {
		t.Fatalf("webhooks assign no message id, got %q", id)
	}
	if !received {
		t.Fatalf("server did not receive request")
	}
}

func TestWebhookSenderErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	sender := newWebhookSender(time.Second, noopLogger{})
	d := Destination{Name: "hook", Kind: KindWebhook, Address: srv.URL}

	if _, err := sender.Send(context.Background(), d, Message{Body: []byte("{}")}); err == nil {
		t.Fatalf("expected error on non-2xx response")
	}
}

func TestWebhookSenderErrorOnUnreachable(t *testing.T) {
	sender := newWebhookSender(500*time.Millisecond, noopLogger{})
	d := Destination{Name: "hook", Kind: KindWebhook, Address: "http://127.0.0.1:1/unreachable"}

	if _, err := sender.Send(context.Background(), d, Message{Body: []byte("{}")}); err == nil {
		t.Fatalf("expected error for unreachable endpoint")
	}
}
