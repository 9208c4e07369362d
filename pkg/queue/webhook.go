package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/httputil"
	"github.com/romega/certforge/pkg/observability"
)

// webhookPayload is the JSON body posted per email. The field set matches
// what the downstream automation workflow expects.
type webhookPayload struct {
	Email            string `json:"email"`
	Subject          string `json:"subject"`
	Message          string `json:"message"`
	CertificateImage string `json:"certificateImage"`
	RecipientName    string `json:"recipientName"`
	Timestamp        string `json:"timestamp"`
}

// Webhook delivers queued emails by posting them to an outbound webhook,
// typically an n8n workflow that owns the actual SMTP sending.
type Webhook struct {
	url        string
	client     *http.Client
	attempts   int
	retryDelay time.Duration
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithWebhookClient sets the HTTP client used for deliveries.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// WithWebhookRetry overrides the retry policy for transient failures.
func WithWebhookRetry(attempts int, delay time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.attempts = attempts
		w.retryDelay = delay
	}
}

// NewWebhook creates a webhook deliverer posting to url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     httputil.NewClient(),
		attempts:   3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Deliver posts one queued item. Transient failures (network errors, 5xx
// responses) are retried; any remaining failure is a DELIVERY error.
func (w *Webhook) Deliver(ctx context.Context, item *Item) error {
	start := time.Now()
	err := w.deliver(ctx, item)
	observability.Queue().OnSend(ctx, item.RecipientEmail, time.Since(start), err)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDelivery, err, "deliver email to %s", item.RecipientEmail)
	}
	return nil
}

func (w *Webhook) deliver(ctx context.Context, item *Item) error {
	body, err := json.Marshal(webhookPayload{
		Email:            item.RecipientEmail,
		Subject:          item.Subject,
		Message:          item.Message,
		CertificateImage: item.CertificateImage,
		RecipientName:    item.RecipientName,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return httputil.Retry(ctx, w.attempts, w.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return httputil.Retryable(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return httputil.Retryable(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}
