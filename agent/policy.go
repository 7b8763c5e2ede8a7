package agent

import (
	"context"
	"fmt"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/rag"
	"github.com/cardassist/cardassist/tool"
)

// PolicyKnowledge is the slice of the knowledge base the policy agent needs:
// prompt-ready context plus raw search for the rag_search tool.
// *rag.Manager satisfies it.
type PolicyKnowledge interface {
	ContextForPrompt(ctx context.Context, query string) (string, error)
	Search(ctx context.Context, query string, k int) ([]rag.SearchResult, error)
}

var policyKeywords = []string{
	"policy", "benefit", "coverage", "insurance", "fee", "fees",
	"annual fee", "interest rate", "reward", "rewards", "points",
	"cashback", "travel insurance", "purchase protection", "warranty",
	"eligibility", "credit limit policy", "foreign transaction",
	"late payment", "grace period",
}

// NewPolicyAgent builds the specialist for card policy questions. Answers are
// grounded in the indexed policy documents; when retrieval comes back empty
// the agent falls back to general corporate-card guidance.
func NewPolicyAgent(llm model.Model, kb PolicyKnowledge) *DomainAgent {
	cfg := DomainConfig{
		Intents:                 []Intent{IntentPolicyQuery},
		Keywords:                policyKeywords,
		SingleKeywordConfidence: 0.70,
	}

	return NewDomainAgent("PolicyAgent", llm, cfg, func(o *DomainAgentOptions) {
		o.Instruction = NewInstructionFromFunc(func(runCtx *core.RunContext) (string, error) {
			return policyInstruction(runCtx, kb)
		})
		o.Tools = []tool.Tool{newRagSearchTool(kb)}
		o.FollowUps = policyFollowUps
		o.Escalate = policyEscalation
		o.ContextUpdates = func(query string) map[string]any {
			return map[string]any{
				"support_category":  "policy",
				"last_policy_query": query,
			}
		}
	})
}

func policyInstruction(runCtx *core.RunContext, kb PolicyKnowledge) (string, error) {
	query := userQuery(runCtx)

	kbContext, err := kb.ContextForPrompt(runCtx.Context, query)
	if err != nil {
		runCtx.LogWarn("agent.policy.retrieval_failed", "error", err.Error())
		kbContext = ""
	}

	if kbContext != "" {
		return fmt.Sprintf(`You are a BMO Corporate Card policy expert assistant. Answer the cardholder's question using the policy information below.

POLICY INFORMATION:
%s

Guidelines:
1. Answer directly and professionally as BMO's representative.
2. When the policy information contains the answer, use it and name the source document.
3. When it does not, give a helpful general answer based on common corporate card practices. Never mention searching, retrieving, or missing documents.
4. Include specific fees, limits, and percentages when available.
5. Speak definitively; avoid "typically" or "usually".
6. If you must defer, say only: "For specific details on this, please check your cardholder agreement or contact your account administrator."`, kbContext), nil
	}

	return `You are a BMO Corporate Card policy expert assistant. Answer the cardholder's question about corporate card policies.

Specific policy documents are not available for this query, so answer from general corporate card knowledge.

Guidelines:
1. Be professional and concise.
2. Do not invent specific fees, rates, or limits; speak in general terms.
3. Suggest contacting support for BMO-specific policy details.
4. Never mention that documents are unavailable or missing; just answer naturally.`, nil
}

// newRagSearchTool exposes knowledge base retrieval as a model-callable tool
// so the policy agent can run follow-up searches mid-conversation.
func newRagSearchTool(kb PolicyKnowledge) tool.Tool {
	return tool.NewFunctionTool(
		"rag_search",
		"Search the corporate card policy knowledge base for relevant document excerpts",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The policy question to search for",
				},
				"k": map[string]any{
					"type":        "number",
					"description": "Maximum number of excerpts to return",
				},
			},
			"required": []string{"query"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)

			k := 3
			if v, ok := args["k"].(float64); ok && v > 0 {
				k = int(v)
			}

			results, err := kb.Search(toolCtx.Context(), query, k)
			if err != nil {
				return nil, fmt.Errorf("knowledge base search: %w", err)
			}

			excerpts := make([]map[string]any, 0, len(results))
			for _, r := range results {
				excerpts = append(excerpts, map[string]any{
					"document": r.Document,
					"text":     r.Text,
					"score":    r.Score,
				})
			}

			return map[string]any{"results": excerpts}, nil
		},
	)
}

func policyFollowUps(query string) []string {
	switch {
	case queryContainsAny(query, "fee", "charge", "cost"):
		return []string{"What other fees apply?", "How can I avoid fees?", "View fee schedule"}
	case queryContainsAny(query, "reward", "point", "redeem"):
		return []string{"How do I redeem rewards?", "Check my rewards balance", "What's my earning rate?"}
	case queryContainsAny(query, "travel", "international", "foreign"):
		return []string{"Travel insurance details", "Foreign transaction fees", "Travel notification"}
	case queryContainsAny(query, "benefit", "insurance", "protection"):
		return []string{"How to file a claim", "Coverage limits", "View all benefits"}
	default:
		return []string{"View all card benefits", "Fee schedule", "Ask another policy question"}
	}
}

func policyEscalation(query string) (bool, string) {
	triggers := []string{"complaint", "dispute policy", "disagree with", "unfair", "manager", "supervisor"}
	for _, trigger := range triggers {
		if queryContainsAny(query, trigger) {
			return true, fmt.Sprintf("Policy complaint or dispute detected: %s", trigger)
		}
	}

	return false, ""
}
