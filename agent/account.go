package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/mockdata"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/tool"
)

var accountKeywords = []string{
	"account", "balance", "credit limit", "available credit",
	"spending limit", "authorized user", "add user", "remove user",
	"account info", "account settings", "account status",
	"credit line", "increase limit", "decrease limit",
	"my account", "account summary", "check balance",
	"available funds", "how much credit",
}

// NewAccountAgent builds the specialist for balances, limits, authorized
// users and rewards. All answers are grounded in live account data injected
// into the system prompt.
func NewAccountAgent(llm model.Model, accounts *mockdata.AccountService) *DomainAgent {
	cfg := DomainConfig{
		Intents:                 []Intent{IntentAccountManagement},
		Keywords:                accountKeywords,
		SingleKeywordConfidence: 0.75,
	}

	return NewDomainAgent("AccountAgent", llm, cfg, func(o *DomainAgentOptions) {
		o.Instruction = NewInstructionFromFunc(func(runCtx *core.RunContext) (string, error) {
			return accountInstruction(runCtx, accounts)
		})
		o.Tools = []tool.Tool{
			newUpdateLimitTool(accounts),
			newAddAuthorizedUserTool(accounts),
		}
		o.FollowUps = accountFollowUps
		o.Quote = func(ctx context.Context, query string) map[string]any {
			return accountQuote(accounts, strings.ToLower(query))
		}
		o.Escalate = accountEscalation
		o.ContextUpdates = accountContextUpdates
	})
}

func accountInstruction(runCtx *core.RunContext, accounts *mockdata.AccountService) (string, error) {
	query := strings.ToLower(userQuery(runCtx))

	header := "You are a helpful BMO banking assistant. Use ONLY the account data provided below. Do not reference any other context or documents. Present amounts in dollars with two decimals and keep the response compact."

	switch {
	case queryContainsAny(query, "balance", "how much", "available"):
		summary, err := accounts.GetBalanceSummary("")
		if err != nil {
			return "", fmt.Errorf("balance summary: %w", err)
		}

		utilization := 0.0
		if summary.CreditLimit > 0 {
			utilization = summary.CurrentBalance / summary.CreditLimit * 100
		}

		return fmt.Sprintf(`%s

Account Data:
- Current Balance: $%.2f
- Credit Limit: $%.2f
- Available Credit: $%.2f
- Pending Transactions: $%.2f
- Available After Pending: $%.2f
- Credit Utilization: %.1f%%

Summarize the cardholder's balance position in a short table followed by one sentence.`,
			header,
			summary.CurrentBalance, summary.CreditLimit, summary.AvailableCredit,
			summary.PendingTransactions, summary.AvailableAfterPending, utilization), nil

	case queryContainsAny(query, "reward", "point"):
		rewards, err := accounts.GetRewards("")
		if err != nil {
			return "", fmt.Errorf("rewards info: %w", err)
		}

		return fmt.Sprintf(`%s

Rewards Data:
- Points Balance: %d points
- Estimated Value: $%.2f
- Points Expiring: %d points on %s
- Earning Rates: travel %s, dining %s, other %s
- Redemption Options: %s

Summarize the rewards position and mention the expiring points.`,
			header,
			rewards.PointsBalance, rewards.PointsValue,
			rewards.PointsExpiring, rewards.ExpiryDate,
			rewards.EarningRates["travel"], rewards.EarningRates["dining"], rewards.EarningRates["other"],
			strings.Join(rewards.RedemptionOptions, ", ")), nil

	default:
		account, err := accounts.GetAccount("")
		if err != nil {
			return "", fmt.Errorf("account info: %w", err)
		}

		return fmt.Sprintf(`%s

Account Information:
- Card Type: %s
- Card Number: **** %s
- Account Status: %s
- Credit Limit: $%.2f
- Current Balance: $%.2f
- Available Credit: $%.2f
- Per-Transaction Limit: $%.2f
- Daily Spending Limit: $%.2f
- Authorized Users: %d
- Next Statement Date: %s
- Payment Due Date: %s

If the cardholder asks about changing limits, explain that limit increases require good account standing, a recent credit review, a business justification and approval from the account administrator, then offer to submit the request with the update_spending_limit tool. If they ask about authorized users, explain that adding a user needs administrator approval and a new card (7-10 business days), while removal takes effect within 24 hours, and offer the add_authorized_user tool.`,
			header,
			account.CardType, account.CardLast4, account.AccountStatus,
			account.CreditLimit, account.CurrentBalance, account.AvailableCredit,
			account.PerTransactionLimit, account.DailySpendingLimit,
			account.AuthorizedUsers, account.StatementDate, account.PaymentDueDate), nil
	}
}

func newUpdateLimitTool(accounts *mockdata.AccountService) tool.Tool {
	return tool.NewFunctionTool(
		"update_spending_limit",
		"Update the per-transaction or daily spending limit on the card account",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit_type": map[string]any{
					"type":        "string",
					"enum":        []string{"transaction", "daily"},
					"description": "Which limit to change",
				},
				"new_limit": map[string]any{
					"type":        "number",
					"description": "The requested limit in dollars",
				},
			},
			"required": []string{"limit_type", "new_limit"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			limitType, _ := args["limit_type"].(string)
			newLimit, _ := args["new_limit"].(float64)

			old, err := accounts.UpdateSpendingLimit("", limitType, newLimit)
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"limit_type":     limitType,
				"previous_limit": old,
				"new_limit":      newLimit,
				"status":         "updated",
			}, nil
		},
	)
}

func newAddAuthorizedUserTool(accounts *mockdata.AccountService) tool.Tool {
	return tool.NewFunctionTool(
		"add_authorized_user",
		"Add an authorized user to the card account with an optional spending limit",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Full name of the new authorized user",
				},
				"spending_limit": map[string]any{
					"type":        "number",
					"description": "Monthly spending limit for the user in dollars",
				},
			},
			"required": []string{"name"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			limit, _ := args["spending_limit"].(float64)

			user, err := accounts.AddAuthorizedUser("", name, limit)
			if err != nil {
				return nil, err
			}

			return user, nil
		},
	)
}

func accountFollowUps(query string) []string {
	switch {
	case queryContainsAny(query, "balance", "how much", "available"):
		return []string{"View recent transactions", "Request credit limit increase", "Set up balance alerts", "Download statement"}
	case queryContainsAny(query, "limit", "increase", "decrease", "change"):
		return []string{"Request credit limit increase", "Modify per-transaction limit", "Adjust daily spending limit", "View account details"}
	case queryContainsAny(query, "authorized user", "add user", "remove user"):
		return []string{"Add authorized user", "Remove authorized user", "View user spending", "Set user limits"}
	case queryContainsAny(query, "reward", "point"):
		return []string{"Redeem rewards", "View earning history", "Rewards program details", "Transfer to partners"}
	default:
		return []string{"View recent transactions", "Check rewards balance", "Update account settings", "Download statement"}
	}
}

// accountQuote surfaces the structured card data shown alongside the answer.
func accountQuote(accounts *mockdata.AccountService, query string) map[string]any {
	switch {
	case queryContainsAny(query, "balance", "how much", "available"):
		summary, err := accounts.GetBalanceSummary("")
		if err != nil {
			return nil
		}

		return map[string]any{
			"current_balance":      summary.CurrentBalance,
			"credit_limit":         summary.CreditLimit,
			"available_credit":     summary.AvailableCredit,
			"pending_transactions": summary.PendingTransactions,
		}
	case queryContainsAny(query, "reward", "point"):
		rewards, err := accounts.GetRewards("")
		if err != nil {
			return nil
		}

		return map[string]any{
			"rewards_points": rewards.PointsBalance,
			"rewards_value":  rewards.PointsValue,
		}
	default:
		return nil
	}
}

func accountEscalation(query string) (bool, string) {
	triggers := []string{"fraud", "unauthorized", "dispute", "close account", "cancel card", "complaint"}
	for _, trigger := range triggers {
		if queryContainsAny(query, trigger) {
			return true, fmt.Sprintf("Account issue requiring specialist: %s", trigger)
		}
	}

	return false, ""
}

func accountContextUpdates(query string) map[string]any {
	updates := map[string]any{"support_category": "account"}

	switch {
	case queryContainsAny(query, "balance", "how much", "available"):
		updates["balance_checked"] = true
	case queryContainsAny(query, "limit", "increase", "decrease", "change"):
		updates["limit_inquiry"] = true
	case queryContainsAny(query, "authorized user", "add user", "remove user"):
		updates["user_management_inquiry"] = true
	case queryContainsAny(query, "reward", "point"):
		updates["support_category"] = "rewards"
		updates["rewards_balance_checked"] = true
	default:
		updates["account_info_retrieved"] = true
	}

	return updates
}
