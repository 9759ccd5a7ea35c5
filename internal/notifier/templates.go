package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	"text/template"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Title         string
	Message       string
	Event         string
	ProjectName   string
	Severity      string
	SeverityColor string
	Timestamp     string
	Facts         []Fact
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := map[string]any{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := htmltemplate.New("notification.html").Funcs(funcs).ParseFS(templateFS, "templates/notification.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("notification.txt").Funcs(funcs).ParseFS(templateFS, "templates/notification.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// severityColor returns the color for a severity level.
func severityColor(s Severity) string {
	switch s {
	case SeverityHigh:
		return "#d32f2f" // red
	case SeverityMedium:
		return "#f57c00" // amber
	case SeverityLow:
		return "#388e3c" // green
	default:
		return "#1976d2" // blue
	}
}

// NotificationToTemplateData converts a notification to template data.
func NotificationToTemplateData(n *Notification) TemplateData {
	return TemplateData{
		Title:         n.Title,
		Message:       n.Message,
		Event:         string(n.Event),
		ProjectName:   n.ProjectName,
		Severity:      string(n.Severity),
		SeverityColor: severityColor(n.Severity),
		Timestamp:     n.At.Format("2006-01-02 15:04:05 MST"),
		Facts:         n.Facts,
	}
}
