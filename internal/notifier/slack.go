package notifier

import (
	"context"
	"fmt"
	"strings"
)

// Block Kit limits and formatting.
const (
	slackHeaderMax  = 150
	slackSectionMax = 3000
	slackFieldsMax  = 10
	slackTimeLayout = "2006-01-02 15:04 MST"
)

// SlackConfig holds the incoming webhook URL.
type SlackConfig struct {
	WebhookURL string
}

// Validate checks the webhook URL.
func (c *SlackConfig) Validate() error {
	return validateWebhookURL(c.WebhookURL)
}

// SlackNotifier posts Block Kit messages to a Slack incoming webhook.
type SlackNotifier struct {
	webhook
}

// NewSlackNotifier creates a Slack notifier.
func NewSlackNotifier(config SlackConfig) (*SlackNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}
	return &SlackNotifier{webhook: newWebhook("slack", config.WebhookURL)}, nil
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Close() error { return nil }

func (s *SlackNotifier) Send(ctx context.Context, n *Notification) error {
	return s.post(ctx, s.buildPayload(n))
}

type slackMessage struct {
	Text   string       `json:"text"` // fallback for push notifications
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func mrkdwn(s string) slackText { return slackText{Type: "mrkdwn", Text: s} }

// slackEscape escapes the characters Slack treats as control sequences.
var slackEscape = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace

func (s *SlackNotifier) buildPayload(n *Notification) slackMessage {
	title := fmt.Sprintf("%s %s", severityEmoji(n.Severity), n.Title)
	msg := slackMessage{
		Text: title,
		Blocks: []slackBlock{{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: truncate(title, slackHeaderMax), Emoji: true},
		}},
	}

	if n.Message != "" {
		text := mrkdwn(truncate(slackEscape(n.Message), slackSectionMax-100))
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "section", Text: &text})
	}

	for chunk := range chunks(n.Facts, slackFieldsMax) {
		fields := make([]slackText, len(chunk))
		for i, f := range chunk {
			fields[i] = mrkdwn(fmt.Sprintf("*%s:*\n%s", slackEscape(f.Title), slackEscape(f.Value)))
		}
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "section", Fields: fields})
	}

	footer := fmt.Sprintf("%s | %s | %s", n.Event, strings.ToUpper(string(n.Severity)), n.At.Format(slackTimeLayout))
	msg.Blocks = append(msg.Blocks, slackBlock{Type: "context", Elements: []slackText{mrkdwn(footer)}})
	return msg
}

// chunks yields consecutive slices of at most size elements.
func chunks[T any](s []T, size int) func(yield func([]T) bool) {
	return func(yield func([]T) bool) {
		for i := 0; i < len(s); i += size {
			if !yield(s[i:min(i+size, len(s))]) {
				return
			}
		}
	}
}
