package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts notifications as JSON to an operator-configured endpoint. A
// circuit breaker drops notifications while the endpoint is unhealthy so a
// dead alert channel cannot slow down envelope processing.
type Webhook struct {
	url     string
	client  *http.Client
	breaker *CircuitBreaker
}

// WebhookOption configures a Webhook notifier.
type WebhookOption func(*Webhook)

// WithHTTPClient sets the HTTP client for testability.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *Webhook) {
		if client != nil {
			n.client = client
		}
	}
}

// WithBreaker sets the circuit breaker.
func WithBreaker(breaker *CircuitBreaker) WebhookOption {
	return func(n *Webhook) {
		if breaker != nil {
			n.breaker = breaker
		}
	}
}

// NewWebhook constructs a webhook notifier.
func NewWebhook(url string, timeout time.Duration, opts ...WebhookOption) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := &Webhook{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: NewCircuitBreaker(5, time.Minute),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

type webhookPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notify posts the alert. Returns an error on non-2xx responses so callers
// can count the failure; the breaker remembers it either way.
func (n *Webhook) Notify(ctx context.Context, subject, body string) error {
	if !n.breaker.Allow() {
		return fmt.Errorf("notify %q: circuit open", subject)
	}

	payload, err := json.Marshal(webhookPayload{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.breaker.RecordFailure()
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.breaker.RecordFailure()
		return fmt.Errorf("deliver notification: unexpected status %d", resp.StatusCode)
	}

	n.breaker.RecordSuccess()
	return nil
}
