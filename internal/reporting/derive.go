package reporting

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/ivvboard/internal/assess"
	"github.com/good-yellow-bee/ivvboard/internal/models"
)

const monthLayout = "2006-01"

// calendarDate drops the time of day; report, issue and schedule dates are
// whole UTC days.
func calendarDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// normalize validates a submitted report in place, filling defaults:
// report date (today), report month (from the report date), issue and
// deliverable ids, and the Open / Not Started statuses. All dates are
// truncated to calendar days.
func normalize(r *models.Report, now time.Time) error {
	if r.ReportDate.IsZero() {
		r.ReportDate = now
	}
	r.ReportDate = calendarDate(r.ReportDate)
	r.Schedule.BaselineDate = calendarDate(r.Schedule.BaselineDate)
	r.Schedule.ProjectedDate = calendarDate(r.Schedule.ProjectedDate)

	r.ReportMonth = strings.TrimSpace(r.ReportMonth)
	if r.ReportMonth == "" {
		r.ReportMonth = r.ReportDate.Format(monthLayout)
	}
	if _, err := time.Parse(monthLayout, r.ReportMonth); err != nil {
		return invalid("report_month", "report month must be formatted YYYY-MM")
	}

	r.Background = strings.TrimSpace(r.Background)

	rating, ok := models.ParseLevel(string(r.Assessment.Rating))
	if !ok {
		return invalid("assessment.rating", "rating must be Low, Medium or High")
	}
	r.Assessment.Rating = rating

	for i := range r.Issues {
		if err := normalizeIssue(&r.Issues[i], r.ReportDate); err != nil {
			return err
		}
	}

	if r.Schedule.ProjectedDate.IsZero() {
		return invalid("schedule.projected_date", "projected completion date is required")
	}

	if r.Financials.OriginalAmount.IsNegative() {
		return invalid("financials.original_amount", "original amount must not be negative")
	}
	if r.Financials.PaidToDate.IsNegative() {
		return invalid("financials.paid_to_date", "paid to date must not be negative")
	}

	for i := range r.Scope.Deliverables {
		d := &r.Scope.Deliverables[i]
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return invalid("scope.deliverables.name", "deliverable name is required")
		}
		if d.Status == "" {
			d.Status = models.DeliverableNotStarted
		}
		status, ok := models.ParseDeliverableStatus(string(d.Status))
		if !ok {
			return invalid("scope.deliverables.status", "status must be Not Started, In Progress or Completed")
		}
		d.Status = status
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
	}
	return nil
}

func normalizeIssue(is *models.Issue, reportDate time.Time) error {
	is.Description = strings.TrimSpace(is.Description)
	if is.Description == "" {
		return invalid("issues.description", "issue description is required")
	}

	impact, ok := models.ParseLevel(string(is.Impact))
	if !ok {
		return invalid("issues.impact", "impact must be Low, Medium or High")
	}
	likelihood, ok := models.ParseLevel(string(is.Likelihood))
	if !ok {
		return invalid("issues.likelihood", "likelihood must be Low, Medium or High")
	}
	is.Impact, is.Likelihood = impact, likelihood

	if is.Status == "" {
		is.Status = models.IssueOpen
	}
	status, ok := models.ParseIssueStatus(string(is.Status))
	if !ok {
		return invalid("issues.status", "status must be Open or Closed")
	}
	is.Status = status

	if is.DateRaised.IsZero() {
		return invalid("issues.date_raised", "date raised is required")
	}
	is.DateRaised = calendarDate(is.DateRaised)
	if is.DateRaised.After(reportDate) {
		return invalid("issues.date_raised", "date raised must not be after the report date")
	}
	if is.ID == "" {
		is.ID = uuid.New().String()
	}
	return nil
}

// derive recomputes every derived field from the report's inputs. It must run
// after the baseline date is settled.
func derive(r *models.Report) {
	for i := range r.Issues {
		is := &r.Issues[i]
		is.RiskRating = assess.RiskRating(is.Impact, is.Likelihood)
		is.AgeDays = assess.IssueAge(is.DateRaised, r.ReportDate)
	}

	r.Schedule.VarianceDays = assess.ScheduleVariance(r.Schedule.BaselineDate, r.Schedule.ProjectedDate)
	r.Schedule.VarianceStatus = assess.ClassifyVariance(r.Schedule.VarianceDays)

	r.Financials.PaidPercent = assess.Percent(r.Financials.PaidToDate, r.Financials.OriginalAmount)

	r.Scope.Completed, r.Scope.Total = assess.CountDeliverables(r.Scope.Deliverables)
	r.Scope.CompletionPercent = assess.CompletionPercent(r.Scope.Completed, r.Scope.Total)
}

// settleBaseline applies the propagation rule. established is the baseline
// already fixed by another report of the project; stored is the report's own
// baseline when it is being edited. Either one beats the submitted value, so
// a baseline never changes once saved.
func settleBaseline(r *models.Report, established *time.Time, stored time.Time) error {
	switch {
	case established != nil:
		r.Schedule.BaselineDate = *established
	case !stored.IsZero():
		r.Schedule.BaselineDate = stored
	case !r.Schedule.BaselineDate.IsZero():
	default:
		return ErrBaselineRequired
	}
	return nil
}
