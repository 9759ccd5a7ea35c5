package reporting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

func TestSummarize_BudgetDonut(t *testing.T) {
	start, end := date(2025, 1, 1), date(2025, 12, 31)
	p := models.NewProject("Alpha", models.StatusAtRisk)
	p.VendorID = "secret-vendor"
	p.Budget = decimal.NewFromInt(10_000_000)
	p.Spent = decimal.NewFromInt(3_000_000)
	p.StartDate, p.EndDate = &start, &end

	sum := Summarize(p, date(2026, 3, 1))
	if sum.Budget.SpentPercent != 30 || sum.Budget.RemainingPercent != 70 {
		t.Errorf("donut = %v/%v, want 30/70", sum.Budget.SpentPercent, sum.Budget.RemainingPercent)
	}
	if sum.StatusColor != "amber" {
		t.Errorf("status color = %s", sum.StatusColor)
	}
	if sum.Progress == nil || *sum.Progress != 100 {
		t.Errorf("progress = %v, want 100", sum.Progress)
	}

	p.StartDate = nil
	if Summarize(p, time.Now()).Progress != nil {
		t.Error("progress should be omitted without a date range")
	}
}

func TestBuildView(t *testing.T) {
	start := date(2025, 1, 1)
	project := &models.Project{StartDate: &start}
	r := &models.Report{
		ReportDate: date(2025, 7, 2),
		Issues: []models.Issue{
			{ID: "late", DateRaised: date(2025, 6, 1), RiskRating: 6, Status: models.IssueOpen},
			{ID: "early", DateRaised: date(2025, 2, 1), RiskRating: 5, Status: models.IssueClosed},
			{ID: "mid", DateRaised: date(2025, 4, 1), RiskRating: 3, Status: models.IssueOpen},
		},
		Schedule: models.Schedule{ProjectedDate: date(2026, 1, 1)},
		Financials: models.Financials{
			OriginalAmount: decimal.NewFromInt(400),
			PaidToDate:     decimal.NewFromInt(100),
		},
	}

	v := BuildView(project, r)

	if v.Finance.SpentPercent != 25 || v.Finance.RemainingPercent != 75 {
		t.Errorf("finance = %+v", v.Finance)
	}
	if v.OpenIssues != 2 || v.HighRiskIssues != 1 {
		t.Errorf("open = %d, high risk = %d", v.OpenIssues, v.HighRiskIssues)
	}
	if v.Progress == nil || *v.Progress < 49 || *v.Progress > 51 {
		t.Errorf("progress = %v, want about 50", v.Progress)
	}

	order := []string{v.Timeline[0].IssueID, v.Timeline[1].IssueID, v.Timeline[2].IssueID}
	if order[0] != "early" || order[1] != "mid" || order[2] != "late" {
		t.Errorf("timeline order = %v", order)
	}
	if !v.Timeline[0].HighRisk || v.Timeline[1].HighRisk {
		t.Error("high risk flags wrong")
	}

	if BuildView(nil, r).Progress != nil {
		t.Error("progress should be omitted without a project start")
	}
}
