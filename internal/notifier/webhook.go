package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// WebhookError reports a non-2xx answer from a chat webhook.
type WebhookError struct {
	Service    string
	Status     int
	Body       string
	RetryAfter time.Duration // from a 429 Retry-After header, if any
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("%s webhook: status %d: %s", e.Service, e.Status, e.Body)
}

// Temporary reports whether a later retry may succeed.
func (e *WebhookError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return errors.New("webhook URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook URL: %w", err)
	}
	if u.Scheme != "https" {
		return errors.New("webhook URL must use HTTPS")
	}
	if u.Host == "" {
		return errors.New("webhook URL has no host")
	}
	return nil
}

// webhook posts JSON payloads to one incoming-webhook URL.
type webhook struct {
	service string
	url     string
	client  *http.Client
}

func newWebhook(service, rawURL string) webhook {
	return webhook{
		service: service,
		url:     rawURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", w.service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", w.service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", w.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	werr := &WebhookError{Service: w.service, Status: resp.StatusCode, Body: string(snippet)}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		werr.RetryAfter = time.Duration(secs) * time.Second
	}
	return werr
}
