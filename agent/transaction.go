package agent

import (
	"fmt"
	"strings"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/mockdata"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/tool"
)

var transactionKeywords = []string{
	"transaction", "charge", "purchase", "payment", "statement",
	"dispute", "refund", "merchant", "receipt", "download",
	"recent transactions", "transaction history", "spending",
	"what did i spend", "show my", "find transaction",
}

// NewTransactionAgent builds the specialist for transaction history,
// searches, statements and dispute filing.
func NewTransactionAgent(llm model.Model, txns *mockdata.TransactionService) *DomainAgent {
	cfg := DomainConfig{
		Intents:                 []Intent{IntentTransactionInquiry, IntentDisputeFiling},
		Keywords:                transactionKeywords,
		SingleKeywordConfidence: 0.75,
	}

	return NewDomainAgent("TransactionAgent", llm, cfg, func(o *DomainAgentOptions) {
		o.Instruction = NewInstructionFromFunc(func(runCtx *core.RunContext) (string, error) {
			return transactionInstruction(runCtx, txns)
		})
		o.Tools = []tool.Tool{
			newSearchTransactionsTool(txns),
			newFileDisputeTool(txns),
		}
		o.FollowUps = transactionFollowUps
		o.Escalate = transactionEscalation
		o.ContextUpdates = transactionContextUpdates
	})
}

func transactionInstruction(runCtx *core.RunContext, txns *mockdata.TransactionService) (string, error) {
	query := strings.ToLower(userQuery(runCtx))

	header := "You are a helpful BMO banking assistant. Use ONLY the transaction data provided below. Do not reference any other context or retrieved documents. Keep the response compact."

	switch {
	case queryContainsAny(query, "dispute", "fraud", "unauthorized", "didn't make"):
		return header + `

The cardholder wants to dispute a charge. Explain what you need to file a dispute:
1. Transaction date or merchant name
2. Transaction amount
3. Reason for dispute (unauthorized charge, incorrect amount, product not received, defective product, duplicate charge)
4. Any supporting information

Offer to show recent transactions to help them find the charge. Once they identify a transaction and a reason, file it with the file_dispute tool and confirm the dispute id, case number and expected resolution date.`, nil

	case queryContainsAny(query, "statement", "download", "export"):
		return header + `

The cardholder wants their statement. Tell them the current statement is ready for download, covers all transactions, fees, payments and rewards for the period, and is available in PDF, CSV and Excel formats for the next 7 days.`, nil

	case queryContainsAny(query, "find", "search", "look for"):
		return header + `

The cardholder wants to find specific transactions. Explain they can search by merchant name, date range, amount, or category (Travel, Dining, Office Supplies...). When they name criteria, run the search_transactions tool and present the matches in a short table.`, nil

	default:
		recent := txns.GetRecent(10)

		var rows strings.Builder
		var total float64
		for _, t := range recent {
			total += t.Amount
			fmt.Fprintf(&rows, "- Date: %s, Merchant: %s, Amount: $%.2f %s, Category: %s, Status: %s\n",
				t.Date.Format("2006-01-02"), t.Merchant, t.Amount, t.Currency, t.Category, t.Status)
		}

		return fmt.Sprintf(`%s

Transaction Data:
%s
Total Amount (Last %d transactions): $%.2f CAD

Present the recent transactions as a short table with date, merchant, category, amount and status, followed by the total.`,
			header, rows.String(), len(recent), total), nil
	}
}

func newSearchTransactionsTool(txns *mockdata.TransactionService) tool.Tool {
	return tool.NewFunctionTool(
		"search_transactions",
		"Search the transaction history by merchant, category, or amount range",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"merchant": map[string]any{
					"type":        "string",
					"description": "Merchant name or fragment to match",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Spending category to match",
				},
				"min_amount": map[string]any{
					"type":        "number",
					"description": "Minimum transaction amount",
				},
				"max_amount": map[string]any{
					"type":        "number",
					"description": "Maximum transaction amount",
				},
			},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			merchant, _ := args["merchant"].(string)
			category, _ := args["category"].(string)
			minAmount, _ := args["min_amount"].(float64)
			maxAmount, _ := args["max_amount"].(float64)

			matches := txns.Search(merchant, category, minAmount, maxAmount)

			return map[string]any{
				"count":        len(matches),
				"transactions": matches,
			}, nil
		},
	)
}

func newFileDisputeTool(txns *mockdata.TransactionService) tool.Tool {
	return tool.NewFunctionTool(
		"file_dispute",
		"File a dispute for a specific transaction",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"transaction_id": map[string]any{
					"type":        "string",
					"description": "The id of the disputed transaction",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Why the charge is being disputed",
				},
			},
			"required": []string{"transaction_id", "reason"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			transactionID, _ := args["transaction_id"].(string)
			reason, _ := args["reason"].(string)

			dispute, err := txns.FileDispute(transactionID, reason)
			if err != nil {
				return nil, err
			}

			toolCtx.SetState("dispute_filed", dispute.DisputeID)

			return dispute, nil
		},
	)
}

func transactionFollowUps(query string) []string {
	if queryContainsAny(query, "dispute", "fraud", "unauthorized", "didn't make") {
		return []string{"Show recent transactions", "I have details", "Contact support"}
	}

	return []string{"View transactions", "Download statement", "Search transactions"}
}

func transactionEscalation(query string) (bool, string) {
	if queryContainsAny(query, "fraud", "stolen", "unauthorized", "scam") {
		return true, "Potential fraud - requires immediate attention"
	}

	return false, ""
}

func transactionContextUpdates(query string) map[string]any {
	updates := map[string]any{
		"support_category":    "transactions",
		"transactions_viewed": true,
	}

	if queryContainsAny(query, "dispute", "fraud", "unauthorized", "didn't make") {
		updates["dispute_needed"] = true
	}

	return updates
}
