package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/mockdata"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/tool"
)

var analyticsKeywords = []string{
	"analytics", "report", "spending", "trend", "budget",
	"expense", "category", "breakdown", "analysis", "insight",
	"how much spent", "spending by", "monthly spending",
	"track", "compliance", "over budget",
}

// NewAnalyticsAgent builds the specialist for spending analytics, budget
// tracking, compliance checks and expense reports. It never escalates.
func NewAnalyticsAgent(llm model.Model, analytics *mockdata.AnalyticsService) *DomainAgent {
	cfg := DomainConfig{
		Intents:                 []Intent{IntentAnalyticsRequest},
		Keywords:                analyticsKeywords,
		SingleKeywordConfidence: 0.70,
	}

	return NewDomainAgent("AnalyticsAgent", llm, cfg, func(o *DomainAgentOptions) {
		o.Instruction = NewInstructionFromFunc(func(runCtx *core.RunContext) (string, error) {
			return analyticsInstruction(runCtx, analytics)
		})
		o.Tools = []tool.Tool{newExpenseReportTool(analytics)}
		o.FollowUps = func(string) []string {
			return []string{"Category breakdown", "Spending trends", "Budget analysis", "Generate report"}
		}
		o.ContextUpdates = func(string) map[string]any {
			return map[string]any{
				"support_category": "analytics",
				"analytics_viewed": true,
			}
		}
	})
}

func analyticsInstruction(runCtx *core.RunContext, analytics *mockdata.AnalyticsService) (string, error) {
	query := strings.ToLower(userQuery(runCtx))

	header := "You are a helpful BMO banking assistant. Use ONLY the spending data provided below. Do not reference any other context or documents. Present amounts in dollars with two decimals and keep the response compact."

	switch {
	case queryContainsAny(query, "category", "breakdown", "by category"):
		categories := analytics.SpendingByCategory()

		var rows strings.Builder
		count := 0
		for _, c := range categories {
			count += c.Count
			fmt.Fprintf(&rows, "- %s: $%.2f (%.1f%%) - %d transactions\n",
				c.Category, c.Total, c.Percentage, c.Count)
		}

		return fmt.Sprintf(`%s

Spending Data (Last 30 Days):
%s
Total Spending: $%.2f
Total Transactions: %d

Present the spending by category as a short table with a one-sentence insight about the top category.`,
			header, rows.String(), analytics.TotalSpending(), count), nil

	case queryContainsAny(query, "trend", "over time", "monthly", "weekly"):
		period := "monthly"
		if queryContainsAny(query, "weekly") {
			period = "weekly"
		}
		trends := analytics.SpendingTrends(period, 6)

		var rows strings.Builder
		for _, p := range trends.Points {
			fmt.Fprintf(&rows, "- %s: $%.2f across %d transactions (avg $%.2f)\n",
				p.Period, p.Total, p.Count, p.Average)
		}

		return fmt.Sprintf(`%s

Spending Trend Data (%s):
%s
Summary:
- Direction: %s (%.1f%% change)
- Highest Period: %s
- Lowest Period: %s

Present the trend as a short table in chronological order, state whether spending is %s and by how much, and call out the highest and lowest periods.`,
			header, trends.PeriodType, rows.String(),
			trends.Summary.Direction, trends.Summary.ChangePercentage,
			trends.Summary.HighestPeriod, trends.Summary.LowestPeriod,
			trends.Summary.Direction), nil

	case queryContainsAny(query, "budget", "on track", "over budget"):
		budget := analytics.AnalyzeBudget(0)

		status := "On Track"
		if budget.Status != "on_track" {
			status = "Over Budget"
		}

		return fmt.Sprintf(`%s

Budget Data:
- Monthly Budget: $%.2f
- Amount Spent: $%.2f
- Remaining Budget: $%.2f
- Daily Average: $%.2f
- Projected Month-End: $%.2f
- Status: %s

Present the budget position as a short table, then one recommendation: if there is budget remaining, suggest a daily spend that keeps them on budget; otherwise advise reducing discretionary expenses.`,
			header,
			budget.MonthlyBudget, budget.CurrentSpending, budget.RemainingBudget,
			budget.DailyAverage, budget.ProjectedSpending, status), nil

	case queryContainsAny(query, "compliance", "policy limit"):
		results := analytics.CheckCompliance()

		var rows strings.Builder
		for _, r := range results {
			fmt.Fprintf(&rows, "- %s: spent $%.2f of $%.2f limit (%s)\n",
				r.Category, r.Spent, r.Limit, r.Status)
		}

		return fmt.Sprintf(`%s

Compliance Data (category spend vs corporate policy limits):
%s
Present the compliance position as a short table and flag any non_compliant categories clearly.`, header, rows.String()), nil

	case queryContainsAny(query, "report", "expense report", "export"):
		return header + `

The cardholder wants an expense report. Generate it with the generate_expense_report tool, then confirm the report id, period, total spending and transaction count, and mention that the category breakdown and top merchants are included in the saved report.`, nil

	default:
		return header + `

Available Analytics:
1. Category Breakdown - spending by category
2. Spending Trends - changes over time
3. Budget Analysis - actual vs budget
4. Expense Reports - detailed exportable reports
5. Compliance Tracking - category spend vs policy limits

Present these options as a short table and ask what the cardholder would like to analyze.`, nil
	}
}

// newExpenseReportTool generates a report and stores the JSON rendering as an
// artifact so it can be downloaded later.
func newExpenseReportTool(analytics *mockdata.AnalyticsService) tool.Tool {
	return tool.NewFunctionTool(
		"generate_expense_report",
		"Generate an expense report for the last 30 days and save it for download",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			report := analytics.GenerateExpenseReport()

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("encode report: %w", err)
			}

			artifactID := fmt.Sprintf("reports/%s.json", report.ReportID)
			if err := toolCtx.SaveArtifact(artifactID, data); err != nil {
				toolCtx.Logger().Warn("agent.analytics.report_save_failed", "error", err.Error())
			}

			return map[string]any{
				"report_id":         report.ReportID,
				"period":            report.Period,
				"total_spending":    report.TotalSpending,
				"transaction_count": report.TransactionCount,
				"artifact_id":       artifactID,
			}, nil
		},
	)
}
