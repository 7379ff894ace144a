package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lurewire/decoy/pkg/httputil"
)

// WebhookSink posts reports as JSON to a configured HTTP endpoint.
type WebhookSink struct {
	url    string
	apiKey string
	client *http.Client
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithAPIKey adds an x-api-key header to deliveries.
func WithAPIKey(key string) WebhookOption {
	return func(w *WebhookSink) { w.apiKey = key }
}

// WithTimeout overrides the delivery timeout (default: fast tier, 5s).
func WithTimeout(d time.Duration) WebhookOption {
	return func(w *WebhookSink) { w.client = httputil.NewClient(d) }
}

// NewWebhookSink creates a sink delivering to url.
func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	w := &WebhookSink{
		url:    url,
		client: httputil.Client(httputil.TierFast),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify delivers the report with a single bounded attempt.
func (w *WebhookSink) Notify(ctx context.Context, report *Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("x-api-key", w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver report %s: %w", report.ReportID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d for report %s", resp.StatusCode, report.ReportID)
	}
	return nil
}
