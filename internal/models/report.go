package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Level is a Low/Medium/High bucket used for assessment ratings,
// issue impact and issue likelihood.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// ParseLevel matches s case-insensitively.
func ParseLevel(s string) (Level, bool) {
	for _, l := range []Level{LevelLow, LevelMedium, LevelHigh} {
		if equalFoldTrim(string(l), s) {
			return l, true
		}
	}
	return "", false
}

// IssueStatus is the open/closed state of an issue.
type IssueStatus string

const (
	IssueOpen   IssueStatus = "Open"
	IssueClosed IssueStatus = "Closed"
)

// ParseIssueStatus matches s case-insensitively.
func ParseIssueStatus(s string) (IssueStatus, bool) {
	for _, st := range []IssueStatus{IssueOpen, IssueClosed} {
		if equalFoldTrim(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// DeliverableStatus is the tri-state completion status of a deliverable.
type DeliverableStatus string

const (
	DeliverableNotStarted DeliverableStatus = "Not Started"
	DeliverableInProgress DeliverableStatus = "In Progress"
	DeliverableCompleted  DeliverableStatus = "Completed"
)

// ParseDeliverableStatus matches s case-insensitively.
func ParseDeliverableStatus(s string) (DeliverableStatus, bool) {
	for _, st := range []DeliverableStatus{DeliverableNotStarted, DeliverableInProgress, DeliverableCompleted} {
		if equalFoldTrim(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// VarianceStatus classifies a schedule variance.
type VarianceStatus string

const (
	VarianceAhead  VarianceStatus = "Ahead"
	VarianceOnTime VarianceStatus = "OnTime"
	VarianceLate   VarianceStatus = "Late"
)

// Report is a monthly independent-verification report for a project.
type Report struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	ReportMonth string      `json:"report_month"` // YYYY-MM
	ReportDate  time.Time   `json:"report_date"`
	Background  string      `json:"background"`
	Assessment  Assessment  `json:"assessment"`
	Issues      []Issue     `json:"issues"`
	Schedule    Schedule    `json:"schedule"`
	Financials  Financials  `json:"financials"`
	Scope       ScopeStatus `json:"scope"`
	SubmittedBy string      `json:"submitted_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Assessment is the overall risk rating of the reporting period.
type Assessment struct {
	Rating      Level  `json:"rating"`
	Description string `json:"description"`
}

// Issue is a risk item raised by the vendor.
type Issue struct {
	ID             string      `json:"id"`
	Description    string      `json:"description"`
	Impact         Level       `json:"impact"`
	Likelihood     Level       `json:"likelihood"`
	RiskRating     int         `json:"risk_rating"` // derived, 2..6
	DateRaised     time.Time   `json:"date_raised"`
	Recommendation string      `json:"recommendation,omitempty"`
	Status         IssueStatus `json:"status"`
	AgeDays        int         `json:"age_days"` // derived at save time
}

// Schedule holds the baseline and projected completion dates.
// BaselineDate is fixed by the first report of the project.
type Schedule struct {
	Narrative      string         `json:"narrative,omitempty"`
	BaselineDate   time.Time      `json:"baseline_date"`
	ProjectedDate  time.Time      `json:"projected_date"`
	VarianceDays   int            `json:"variance_days"`
	VarianceStatus VarianceStatus `json:"variance_status"`
}

// Financials is the contract spend position at report time.
type Financials struct {
	OriginalAmount decimal.Decimal `json:"original_amount"`
	PaidToDate     decimal.Decimal `json:"paid_to_date"`
	PaidPercent    float64         `json:"paid_percent"` // derived
}

// ScopeStatus tracks deliverables.
type ScopeStatus struct {
	Deliverables      []Deliverable `json:"deliverables"`
	Completed         int           `json:"completed"`
	Total             int           `json:"total"`
	CompletionPercent float64       `json:"completion_percent"` // derived
}

// Deliverable is a discrete scope item.
type Deliverable struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      DeliverableStatus `json:"status"`
	Description string            `json:"description,omitempty"`
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(a, strings.TrimSpace(b))
}
