package destinations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nimbus-works/nimbus-event-forwarder/pkg/httpclient"
)

const webhookDefaultTimeout = 10 * time.Second

// webhookSender delivers webhook-kind destinations with a JSON POST. The
// message attributes ride along as X- headers.
type webhookSender struct {
	client httpclient.Client
	log    Logger
}

func newWebhookSender(timeout time.Duration, log Logger) *webhookSender {
	if timeout <= 0 {
		timeout = webhookDefaultTimeout
	}
	return &webhookSender{
		client: httpclient.NewRestyClient(timeout),
		log:    ensureLogger(log),
	}
}

// Send posts the message to the destination URL. Any non-2xx response is a
// delivery failure.
func (w *webhookSender) Send(ctx context.Context, d Destination, msg Message) (string, error) {
	headers := make(map[string]string, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers["X-"+k] = v
	}

	resp, err := w.client.Post(ctx, d.Address, msg.Body, headers)
	if err != nil {
		w.log.ErrorObj("webhook post failed", "destination_webhook_error", map[string]any{
			"destination": d.Name,
			"error":       err.Error(),
		})
		return "", fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("http response status %d: %s", resp.StatusCode(), readBodySnippet(resp.Body()))
	}

	w.log.DebugObj("webhook delivered message", "destination_webhook_delivery", map[string]any{
		"destination": d.Name,
	})
	return "", nil
}

func readBodySnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
