package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTeamsConfigValidation(t *testing.T) {
	if err := (&TeamsConfig{}).Validate(); err == nil {
		t.Error("expected error for empty webhook URL")
	}
	if err := (&TeamsConfig{WebhookURL: "http://example.webhook.office.com/x"}).Validate(); err == nil {
		t.Error("expected error for plain HTTP webhook URL")
	}
	if _, err := NewTeamsNotifier(TeamsConfig{WebhookURL: "https://example.webhook.office.com/x"}); err != nil {
		t.Errorf("valid config: %v", err)
	}
}

func TestTeamsNotifierSend(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		// Workflow webhooks answer 202.
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier := &TeamsNotifier{webhook: testWebhook("teams", server)}
	if err := notifier.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if received["type"] != "message" {
		t.Errorf("type = %v", received["type"])
	}
	attachments, _ := received["attachments"].([]any)
	if len(attachments) != 1 {
		t.Fatalf("attachments = %v", received["attachments"])
	}
}

func TestTeamsAdaptiveCard(t *testing.T) {
	msg := (&TeamsNotifier{}).buildPayload(testNotification())
	card := msg.Attachments[0].Content

	if card.Type != "AdaptiveCard" || card.Version != "1.4" {
		t.Errorf("card = %s %s", card.Type, card.Version)
	}

	header, ok := card.Body[0].(container)
	if !ok {
		t.Fatalf("first element = %T, want container", card.Body[0])
	}
	if header.Style != "attention" {
		t.Errorf("header style = %q, want attention", header.Style)
	}

	var facts *factSet
	for _, el := range card.Body {
		if fs, ok := el.(factSet); ok {
			facts = &fs
		}
	}
	if facts == nil || len(facts.Facts) != 3 || facts.Facts[0].Value != "2025-06" {
		t.Errorf("facts = %+v", facts)
	}
}

func TestTeamsNotifierHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad card", http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := &TeamsNotifier{webhook: testWebhook("teams", server)}
	err := notifier.Send(context.Background(), testNotification())
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want status 400", err)
	}
}

func TestTeamsSeverityStyle(t *testing.T) {
	tests := map[Severity]string{
		SeverityHigh:   "attention",
		SeverityMedium: "warning",
		SeverityLow:    "good",
		SeverityInfo:   "accent",
	}
	for sev, want := range tests {
		if got := teamsSeverityStyle(sev); got != want {
			t.Errorf("teamsSeverityStyle(%q) = %q, want %q", sev, got, want)
		}
	}
}
