package notifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/reporting"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

// Severity ranks how much attention a notification needs.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Fact is a labelled value shown in a notification body.
type Fact struct {
	Title string
	Value string
}

// Notification is a rendered lifecycle change ready to send.
type Notification struct {
	Event       watch.EventType
	ProjectID   string
	ProjectName string
	ReportID    string
	Title       string
	Message     string
	Severity    Severity
	Facts       []Fact
	At          time.Time
}

// FromEvent builds a notification for ev. project is the current state of
// the event's project and may be nil when it no longer exists.
func FromEvent(ev watch.Event, project *models.Project) (*Notification, error) {
	n := &Notification{
		Event:     ev.Type,
		ProjectID: ev.ProjectID,
		ReportID:  ev.ReportID,
		Severity:  SeverityInfo,
		At:        ev.At,
	}
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}

	switch ev.Type {
	case watch.ProjectCreated, watch.ProjectUpdated:
		var p models.Project
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		n.ProjectName = p.Name
		n.Severity = projectSeverity(p.Status)
		verb := "created"
		if ev.Type == watch.ProjectUpdated {
			verb = "updated"
		}
		n.Title = fmt.Sprintf("Project %s: %s", verb, p.Name)
		n.Message = fmt.Sprintf("%s is %s.", p.Name, p.Status)
		n.Facts = projectFacts(&p)

	case watch.ProjectDeleted:
		n.ProjectName = nameOr(project, ev.ProjectID)
		n.Title = fmt.Sprintf("Project deleted: %s", n.ProjectName)
		n.Message = "The project and all of its reports were removed."

	case watch.ReportCreated, watch.ReportUpdated:
		var r models.Report
		if err := json.Unmarshal(ev.Data, &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		n.ProjectName = nameOr(project, ev.ProjectID)
		view := reporting.BuildView(project, &r)
		n.Severity = reportSeverity(r.Assessment.Rating, view.HighRiskIssues)
		verb := "submitted"
		if ev.Type == watch.ReportUpdated {
			verb = "updated"
		}
		n.Title = fmt.Sprintf("Report %s: %s %s", verb, n.ProjectName, r.ReportMonth)
		n.Message = strings.TrimSpace(r.Assessment.Description)
		if n.Message == "" {
			n.Message = fmt.Sprintf("Overall assessment %s.", r.Assessment.Rating)
		}
		n.Facts = []Fact{
			{Title: "Month", Value: r.ReportMonth},
			{Title: "Assessment", Value: string(r.Assessment.Rating)},
			{Title: "Schedule", Value: varianceText(r.Schedule)},
			{Title: "Open issues", Value: fmt.Sprintf("%d (%d high risk)", view.OpenIssues, view.HighRiskIssues)},
			{Title: "Paid", Value: fmt.Sprintf("%.1f%%", view.Finance.SpentPercent)},
		}

	case watch.ReportDeleted:
		n.ProjectName = nameOr(project, ev.ProjectID)
		n.Title = fmt.Sprintf("Report deleted: %s", n.ProjectName)
		n.Message = fmt.Sprintf("Report %s was removed.", ev.ReportID)

	default:
		return nil, fmt.Errorf("unsupported event type %q", ev.Type)
	}
	return n, nil
}

func projectFacts(p *models.Project) []Fact {
	facts := []Fact{{Title: "Status", Value: string(p.Status)}}
	if p.Department != "" {
		facts = append(facts, Fact{Title: "Department", Value: p.Department})
	}
	facts = append(facts, Fact{Title: "Budget", Value: p.Budget.StringFixed(2)})
	if p.StartDate != nil && p.EndDate != nil {
		facts = append(facts, Fact{
			Title: "Period",
			Value: p.StartDate.Format("2006-01-02") + " to " + p.EndDate.Format("2006-01-02"),
		})
	}
	return facts
}

func varianceText(s models.Schedule) string {
	switch {
	case s.VarianceDays > 0:
		return fmt.Sprintf("%s, %d days behind", s.VarianceStatus, s.VarianceDays)
	case s.VarianceDays < 0:
		return fmt.Sprintf("%s, %d days ahead", s.VarianceStatus, -s.VarianceDays)
	default:
		return string(s.VarianceStatus)
	}
}

func projectSeverity(s models.ProjectStatus) Severity {
	switch s {
	case models.StatusCritical:
		return SeverityHigh
	case models.StatusAtRisk:
		return SeverityMedium
	default:
		return SeverityInfo
	}
}

func reportSeverity(rating models.Level, highRisk int) Severity {
	if rating == models.LevelHigh || highRisk > 0 {
		return SeverityHigh
	}
	switch rating {
	case models.LevelMedium:
		return SeverityMedium
	case models.LevelLow:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func nameOr(p *models.Project, fallback string) string {
	if p != nil && p.Name != "" {
		return p.Name
	}
	return fallback
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(s Severity) string {
	switch s {
	case SeverityHigh:
		return "\U0001F534" // red circle
	case SeverityMedium:
		return "\U0001F7E1" // yellow circle
	case SeverityLow:
		return "\U0001F7E2" // green circle
	default:
		return "\U0001F535" // blue circle
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
