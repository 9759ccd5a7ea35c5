package notifier

import (
	"context"
	"fmt"
)

const (
	adaptiveCardSchema      = "http://adaptivecards.io/schemas/adaptive-card.json"
	adaptiveCardVersion     = "1.4"
	adaptiveCardContentType = "application/vnd.microsoft.card.adaptive"
)

// TeamsConfig holds the Teams workflow or connector webhook URL.
type TeamsConfig struct {
	WebhookURL string
}

// Validate checks the webhook URL.
func (c *TeamsConfig) Validate() error {
	return validateWebhookURL(c.WebhookURL)
}

// TeamsNotifier posts Adaptive Cards to a Microsoft Teams webhook.
type TeamsNotifier struct {
	webhook
}

// NewTeamsNotifier creates a Teams notifier.
func NewTeamsNotifier(config TeamsConfig) (*TeamsNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid teams config: %w", err)
	}
	return &TeamsNotifier{webhook: newWebhook("teams", config.WebhookURL)}, nil
}

func (t *TeamsNotifier) Name() string { return "teams" }

func (t *TeamsNotifier) Close() error { return nil }

func (t *TeamsNotifier) Send(ctx context.Context, n *Notification) error {
	return t.post(ctx, t.buildPayload(n))
}

type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

type textBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Size     string `json:"size,omitempty"`
	Weight   string `json:"weight,omitempty"`
	Color    string `json:"color,omitempty"`
	IsSubtle bool   `json:"isSubtle,omitempty"`
	Wrap     bool   `json:"wrap"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Bleed bool   `json:"bleed,omitempty"`
	Items []any  `json:"items"`
}

func (t *TeamsNotifier) buildPayload(n *Notification) teamsMessage {
	body := []any{
		container{
			Type:  "Container",
			Style: teamsSeverityStyle(n.Severity),
			Bleed: true,
			Items: []any{textBlock{
				Type:   "TextBlock",
				Text:   severityEmoji(n.Severity) + " " + n.Title,
				Size:   "Large",
				Weight: "Bolder",
				Wrap:   true,
			}},
		},
	}

	if n.Message != "" {
		body = append(body, textBlock{Type: "TextBlock", Text: n.Message, Wrap: true})
	}

	if len(n.Facts) > 0 {
		fs := factSet{Type: "FactSet", Facts: make([]fact, len(n.Facts))}
		for i, f := range n.Facts {
			fs.Facts[i] = fact(f)
		}
		body = append(body, fs)
	}

	body = append(body, textBlock{
		Type:     "TextBlock",
		Text:     fmt.Sprintf("%s · %s", n.Event, n.At.Format(slackTimeLayout)),
		Size:     "Small",
		IsSubtle: true,
		Wrap:     true,
	})

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{{
			ContentType: adaptiveCardContentType,
			Content: adaptiveCard{
				Schema:  adaptiveCardSchema,
				Type:    "AdaptiveCard",
				Version: adaptiveCardVersion,
				Body:    body,
			},
		}},
	}
}

// teamsSeverityStyle maps a severity to an Adaptive Card container style.
func teamsSeverityStyle(s Severity) string {
	switch s {
	case SeverityHigh:
		return "attention"
	case SeverityMedium:
		return "warning"
	case SeverityLow:
		return "good"
	default:
		return "accent"
	}
}
