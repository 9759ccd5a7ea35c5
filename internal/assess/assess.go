// Package assess computes the derived values shown on IV&V reports:
// issue risk scores and ages, schedule variance, and completion and budget
// percentages.
package assess

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

const day = 24 * time.Hour

// HighRiskThreshold is the lowest rating shown with the "high" badge.
const HighRiskThreshold = 5

var hundred = decimal.NewFromInt(100)

// Score maps a level to its 1..3 weight. Unknown levels score 0.
func Score(l models.Level) int {
	switch l {
	case models.LevelLow:
		return 1
	case models.LevelMedium:
		return 2
	case models.LevelHigh:
		return 3
	default:
		return 0
	}
}

// RiskRating is the additive impact+likelihood score, 2..6 for valid levels.
func RiskRating(impact, likelihood models.Level) int {
	return Score(impact) + Score(likelihood)
}

// IsHighRisk reports whether a rating gets the high-risk badge.
func IsHighRisk(rating int) bool {
	return rating >= HighRiskThreshold
}

// IssueAge returns the whole days from raised to reportDate, rounded up.
func IssueAge(raised, reportDate time.Time) int {
	return int(math.Ceil(float64(reportDate.Sub(raised)) / float64(day)))
}

// ScheduleVariance returns projected minus baseline in days, rounded down.
// Positive values mean the projected completion is later than committed.
func ScheduleVariance(baseline, projected time.Time) int {
	return int(math.Floor(float64(projected.Sub(baseline)) / float64(day)))
}

// ClassifyVariance buckets a variance in days: Ahead below zero, Late above,
// OnTime at zero.
func ClassifyVariance(days int) models.VarianceStatus {
	switch {
	case days < 0:
		return models.VarianceAhead
	case days > 0:
		return models.VarianceLate
	default:
		return models.VarianceOnTime
	}
}

// CompletionPercent returns completed/total*100, or 0 when total is 0.
func CompletionPercent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// Percent returns part/whole*100 rounded to two places, or 0 when whole is 0.
func Percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Mul(hundred).Div(whole).Round(2).InexactFloat64()
}

// Breakdown is the spent/remaining split drawn as the budget donut.
type Breakdown struct {
	Budget           decimal.Decimal `json:"budget"`
	Spent            decimal.Decimal `json:"spent"`
	Remaining        decimal.Decimal `json:"remaining"`
	SpentPercent     float64         `json:"spent_percent"`
	RemainingPercent float64         `json:"remaining_percent"`
	Overspent        bool            `json:"overspent"`
}

// BudgetBreakdown splits a budget into spent and remaining shares.
// Remaining is clamped at zero when spending exceeds the budget.
func BudgetBreakdown(budget, spent decimal.Decimal) Breakdown {
	b := Breakdown{Budget: budget, Spent: spent}

	remaining := budget.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
		b.Overspent = true
	}
	b.Remaining = remaining

	if budget.IsZero() {
		return b
	}
	b.SpentPercent = Percent(spent, budget)
	b.RemainingPercent = Percent(remaining, budget)
	return b
}

// ScheduleProgress returns how much of the start..end window has elapsed at
// asOf, clamped to 0..100. A zero-length or inverted window yields 0 before
// the end date and 100 from it on.
func ScheduleProgress(start, end, asOf time.Time) float64 {
	window := end.Sub(start)
	if window <= 0 {
		if asOf.Before(end) {
			return 0
		}
		return 100
	}
	elapsed := asOf.Sub(start)
	pct := float64(elapsed) / float64(window) * 100
	return math.Max(0, math.Min(100, pct))
}

// CountDeliverables returns how many deliverables are completed and the total.
func CountDeliverables(ds []models.Deliverable) (completed, total int) {
	for _, d := range ds {
		if d.Status == models.DeliverableCompleted {
			completed++
		}
	}
	return completed, len(ds)
}
