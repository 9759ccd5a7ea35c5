package reporting

import (
	"sort"
	"time"

	"github.com/good-yellow-bee/ivvboard/internal/assess"
	"github.com/good-yellow-bee/ivvboard/internal/models"
)

// ProjectSummary is the public, vendor-free view of a project.
type ProjectSummary struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Status      models.ProjectStatus `json:"status"`
	StatusColor string               `json:"status_color"`
	Description string               `json:"description,omitempty"`
	Department  string               `json:"department,omitempty"`
	StartDate   *time.Time           `json:"start_date,omitempty"`
	EndDate     *time.Time           `json:"end_date,omitempty"`
	Budget      assess.Breakdown     `json:"budget"`
	Progress    *float64             `json:"schedule_progress,omitempty"`
}

// Summarize builds the public summary of p as of asOf.
func Summarize(p *models.Project, asOf time.Time) ProjectSummary {
	sum := ProjectSummary{
		ID:          p.ID,
		Name:        p.Name,
		Status:      p.Status,
		StatusColor: p.StatusColor,
		Description: p.Description,
		Department:  p.Department,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Budget:      assess.BudgetBreakdown(p.Budget, p.Spent),
	}
	if p.StartDate != nil && p.EndDate != nil {
		progress := assess.ScheduleProgress(*p.StartDate, *p.EndDate, asOf)
		sum.Progress = &progress
	}
	return sum
}

// TimelineEntry is one issue placed on the issue timeline.
type TimelineEntry struct {
	IssueID     string             `json:"issue_id"`
	Description string             `json:"description"`
	DateRaised  time.Time          `json:"date_raised"`
	AgeDays     int                `json:"age_days"`
	RiskRating  int                `json:"risk_rating"`
	HighRisk    bool               `json:"high_risk"`
	Status      models.IssueStatus `json:"status"`
}

// ReportView is a stored report together with the figures its viewer draws.
type ReportView struct {
	Report         *models.Report   `json:"report"`
	Finance        assess.Breakdown `json:"finance"`
	Progress       *float64         `json:"schedule_progress,omitempty"`
	OpenIssues     int              `json:"open_issues"`
	HighRiskIssues int              `json:"high_risk_issues"`
	Timeline       []TimelineEntry  `json:"issue_timeline"`
}

// BuildView computes the viewer figures for r. project supplies the start of
// the schedule window; the window ends at the report's projected date.
func BuildView(project *models.Project, r *models.Report) ReportView {
	v := ReportView{
		Report:   r,
		Finance:  assess.BudgetBreakdown(r.Financials.OriginalAmount, r.Financials.PaidToDate),
		Timeline: make([]TimelineEntry, 0, len(r.Issues)),
	}

	if project != nil && project.StartDate != nil && !r.Schedule.ProjectedDate.IsZero() {
		progress := assess.ScheduleProgress(*project.StartDate, r.Schedule.ProjectedDate, r.ReportDate)
		v.Progress = &progress
	}

	for _, is := range r.Issues {
		high := assess.IsHighRisk(is.RiskRating)
		if is.Status == models.IssueOpen {
			v.OpenIssues++
			if high {
				v.HighRiskIssues++
			}
		}
		v.Timeline = append(v.Timeline, TimelineEntry{
			IssueID:     is.ID,
			Description: is.Description,
			DateRaised:  is.DateRaised,
			AgeDays:     is.AgeDays,
			RiskRating:  is.RiskRating,
			HighRisk:    high,
			Status:      is.Status,
		})
	}
	sort.SliceStable(v.Timeline, func(i, j int) bool {
		return v.Timeline[i].DateRaised.Before(v.Timeline[j].DateRaised)
	})
	return v
}
