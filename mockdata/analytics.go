package mockdata

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// CategoryTotal is the per-category spending aggregate.
type CategoryTotal struct {
	Category   string  `json:"category"`
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
	Average    float64 `json:"average"`
	Percentage float64 `json:"percentage"`
}

// BudgetAnalysis projects month-end spending against a monthly budget.
type BudgetAnalysis struct {
	MonthlyBudget     float64 `json:"monthly_budget"`
	CurrentSpending   float64 `json:"current_spending"`
	RemainingBudget   float64 `json:"remaining_budget"`
	DailyAverage      float64 `json:"daily_average"`
	ProjectedSpending float64 `json:"projected_spending"`
	Status            string  `json:"status"`
}

// ExpenseReport is a generated spending report for an account.
type ExpenseReport struct {
	ReportID          string          `json:"report_id"`
	GeneratedAt       string          `json:"generated_at"`
	Period            string          `json:"period"`
	TotalSpending     float64         `json:"total_spending"`
	TransactionCount  int             `json:"transaction_count"`
	CategoryBreakdown []CategoryTotal `json:"category_breakdown"`
	TopMerchants      []MerchantTotal `json:"top_merchants"`
}

// TrendPoint is one period in a spending trend series.
type TrendPoint struct {
	Period  string  `json:"period"`
	Date    string  `json:"date"`
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// TrendSummary describes the overall movement of a trend series.
type TrendSummary struct {
	Direction        string  `json:"direction"`
	ChangePercentage float64 `json:"change_percentage"`
	HighestPeriod    string  `json:"highest_period"`
	LowestPeriod     string  `json:"lowest_period"`
}

// SpendingTrends is a chronological trend series with its summary.
type SpendingTrends struct {
	PeriodType string       `json:"period_type"`
	Points     []TrendPoint `json:"points"`
	Summary    TrendSummary `json:"summary"`
}

// ComplianceResult flags categories that exceed their policy limits.
type ComplianceResult struct {
	Category string  `json:"category"`
	Spent    float64 `json:"spent"`
	Limit    float64 `json:"limit"`
	Status   string  `json:"status"`
}

// Per-category monthly spend limits from corporate card policy.
var policyLimits = map[string]float64{
	"Travel":          3000.00,
	"Dining":          500.00,
	"Office Supplies": 750.00,
	"Software":        1000.00,
}

// AnalyticsService computes spending analytics over a transaction ledger.
type AnalyticsService struct {
	txns *TransactionService
	rng  *rand.Rand
}

// NewAnalyticsService builds an analytics service over the given ledger.
func NewAnalyticsService(txns *TransactionService, seed int64) *AnalyticsService {
	return &AnalyticsService{
		txns: txns,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// SpendingByCategory aggregates spending per category, largest total first.
func (s *AnalyticsService) SpendingByCategory() []CategoryTotal {
	all := s.txns.All()

	var grand float64
	byCategory := make(map[string]*CategoryTotal)
	for _, t := range all {
		ct, ok := byCategory[t.Category]
		if !ok {
			ct = &CategoryTotal{Category: t.Category}
			byCategory[t.Category] = ct
		}
		ct.Total += t.Amount
		ct.Count++
		grand += t.Amount
	}

	out := make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		ct.Total = round2(ct.Total)
		ct.Average = round2(ct.Total / float64(ct.Count))
		if grand > 0 {
			ct.Percentage = round2(ct.Total / grand * 100)
		}
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })

	return out
}

// TotalSpending sums the full ledger.
func (s *AnalyticsService) TotalSpending() float64 {
	var total float64
	for _, t := range s.txns.All() {
		total += t.Amount
	}

	return round2(total)
}

// AnalyzeBudget compares current spending against a monthly budget and
// projects the month-end total from the daily average. A zero budget
// applies the default of 10000.
func (s *AnalyticsService) AnalyzeBudget(monthlyBudget float64) *BudgetAnalysis {
	if monthlyBudget <= 0 {
		monthlyBudget = 10000.00
	}

	const daysInMonth = 30

	current := s.TotalSpending()
	daysElapsed := time.Now().Day()
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	if daysElapsed > daysInMonth {
		daysElapsed = daysInMonth
	}

	dailyAvg := current / float64(daysElapsed)
	projected := current + dailyAvg*float64(daysInMonth-daysElapsed)

	status := "on_track"
	if projected > monthlyBudget {
		status = "over_budget"
	}

	return &BudgetAnalysis{
		MonthlyBudget:     monthlyBudget,
		CurrentSpending:   current,
		RemainingBudget:   round2(monthlyBudget - current),
		DailyAverage:      round2(dailyAvg),
		ProjectedSpending: round2(projected),
		Status:            status,
	}
}

// SpendingTrends generates a spending trend series at daily, weekly or
// monthly granularity, oldest period first. Unknown period types fall back
// to monthly; numPeriods defaults to 6. The trend direction compares the
// average of the three most recent periods against the three oldest.
func (s *AnalyticsService) SpendingTrends(period string, numPeriods int) *SpendingTrends {
	if numPeriods <= 0 {
		numPeriods = 6
	}
	if period != "daily" && period != "weekly" {
		period = "monthly"
	}

	now := time.Now()
	points := make([]TrendPoint, 0, numPeriods)
	for i := 0; i < numPeriods; i++ {
		var date time.Time
		var label string
		var amount float64

		switch period {
		case "daily":
			date = now.AddDate(0, 0, -i)
			label = date.Format("Jan 02")
			amount = 150 + s.rng.Float64()*150 - 50
		case "weekly":
			date = now.AddDate(0, 0, -7*i)
			label = "Week of " + date.Format("Jan 02")
			amount = 1100 + s.rng.Float64()*700 - 300
		default:
			date = now.AddDate(0, 0, -30*i)
			label = date.Format("January 2006")
			amount = 4500 + s.rng.Float64()*2500 - 1000
		}

		count := s.rng.Intn(21) + 5
		points = append(points, TrendPoint{
			Period:  label,
			Date:    date.Format("2006-01-02"),
			Total:   round2(amount),
			Count:   count,
			Average: round2(amount / float64(count)),
		})
	}

	// Reverse into chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	summary := TrendSummary{Direction: "stable"}
	if n := len(points); n >= 2 {
		w := 3
		if w > n {
			w = n
		}
		var recentSum, previousSum float64
		for i := 0; i < w; i++ {
			recentSum += points[n-1-i].Total
			previousSum += points[i].Total
		}
		recentAvg := recentSum / float64(w)
		previousAvg := previousSum / float64(w)

		summary.Direction = "decreasing"
		if recentAvg > previousAvg {
			summary.Direction = "increasing"
		}
		summary.ChangePercentage = round1(abs((recentAvg - previousAvg) / previousAvg * 100))

		hi, lo := 0, 0
		for i, p := range points {
			if p.Total > points[hi].Total {
				hi = i
			}
			if p.Total < points[lo].Total {
				lo = i
			}
		}
		summary.HighestPeriod = points[hi].Period
		summary.LowestPeriod = points[lo].Period
	}

	return &SpendingTrends{PeriodType: period, Points: points, Summary: summary}
}

// GenerateExpenseReport builds a full spending report for the last 30 days.
func (s *AnalyticsService) GenerateExpenseReport() *ExpenseReport {
	now := time.Now()
	all := s.txns.All()

	return &ExpenseReport{
		ReportID:          fmt.Sprintf("RPT-%d%05d", now.Year(), s.rng.Intn(100000)),
		GeneratedAt:       now.Format(time.RFC3339),
		Period:            "last_30_days",
		TotalSpending:     s.TotalSpending(),
		TransactionCount:  len(all),
		CategoryBreakdown: s.SpendingByCategory(),
		TopMerchants:      s.txns.TopMerchants(5),
	}
}

// CheckCompliance evaluates per-category spending against policy limits.
// Categories without a policy limit are skipped.
func (s *AnalyticsService) CheckCompliance() []ComplianceResult {
	var out []ComplianceResult
	for _, ct := range s.SpendingByCategory() {
		limit, ok := policyLimits[ct.Category]
		if !ok {
			continue
		}

		status := "compliant"
		if ct.Total > limit {
			status = "non_compliant"
		}

		out = append(out, ComplianceResult{
			Category: ct.Category,
			Spent:    ct.Total,
			Limit:    limit,
			Status:   status,
		})
	}

	return out
}
