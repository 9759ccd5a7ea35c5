package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testWebhook points a webhook at a plain-HTTP test server.
func testWebhook(service string, server *httptest.Server) webhook {
	return webhook{service: service, url: server.URL, client: server.Client()}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr string
	}{
		{"", "required"},
		{"http://hooks.slack.com/services/x", "HTTPS"},
		{"https:///services/x", "no host"},
		{"https://hooks.slack.com/services/T00/B00/x", ""},
	}
	for _, tt := range tests {
		err := validateWebhookURL(tt.url)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%q: unexpected error %v", tt.url, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%q: err = %v, want %q", tt.url, err, tt.wantErr)
		}
	}
}

func TestWebhookError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		retryAfter    string
		wantTemporary bool
		wantRetry     time.Duration
	}{
		{"throttled", http.StatusTooManyRequests, "30", true, 30 * time.Second},
		{"server error", http.StatusBadGateway, "", true, 0},
		{"gone", http.StatusGone, "", false, 0},
		{"bad retry header", http.StatusTooManyRequests, "soon", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			err := testWebhook("slack", server).post(context.Background(), map[string]string{"text": "hi"})
			var werr *WebhookError
			if !errors.As(err, &werr) {
				t.Fatalf("err = %v, want *WebhookError", err)
			}
			if werr.Status != tt.status || werr.Temporary() != tt.wantTemporary || werr.RetryAfter != tt.wantRetry {
				t.Errorf("got %+v temporary=%v", werr, werr.Temporary())
			}
			if !strings.Contains(werr.Error(), "slack webhook") {
				t.Errorf("Error() = %q", werr.Error())
			}
		})
	}
}
