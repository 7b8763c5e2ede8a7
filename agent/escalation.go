package agent

import (
	"fmt"
	"strings"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/mockdata"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/tool"
)

var escalationKeywords = []string{
	"escalate", "manager", "supervisor", "complaint", "speak to human",
	"not satisfied", "unhappy", "frustrated", "this is ridiculous",
	"want to cancel", "close account", "legal", "lawyer",
	"fraud", "stolen card", "emergency", "urgent", "immediately",
}

// Session state keys tracking the two-phase escalation conversation.
const (
	stateEscalationPhase    = "escalation_phase"
	stateEscalationType     = "escalation_type"
	stateEscalationPriority = "escalation_priority"
)

// Escalation phases. The first turn gathers clarifying details; the second
// (or a skip request) files the ticket.
const (
	escalationPhaseGathering = "gathering_info"
	escalationPhaseCompleted = "completed"
)

var escalationSkipKeywords = []string{
	"skip", "speak to someone now", "immediate", "now", "don't want to answer",
}

// AssessEscalation classifies a query into an escalation type and priority.
func AssessEscalation(query string) (escalationType, priority string) {
	q := strings.ToLower(query)

	switch {
	case containsAny(q, []string{"fraud", "stolen", "unauthorized", "scam", "emergency"}):
		return "fraud_security", "critical"
	case containsAny(q, []string{"close account", "cancel", "terminate"}):
		return "account_closure", "high"
	case containsAny(q, []string{"complaint", "unsatisfied", "unhappy", "frustrated"}):
		return "complaint", "medium"
	case containsAny(q, []string{"manager", "supervisor", "speak to human"}):
		return "general_escalation", "medium"
	case containsAny(q, []string{"can't access", "locked out", "not working"}):
		return "technical_issue", "high"
	default:
		return "general_escalation", "medium"
	}
}

// clarifyingQuestions lists what the specialist team needs to know up front
// for each escalation type.
func clarifyingQuestions(escalationType string) []string {
	switch escalationType {
	case "fraud_security":
		return []string{
			"When did you first notice the suspicious activity?",
			"Which specific transaction(s) or charges are you concerned about?",
			"Have you authorized anyone else to use your card recently?",
			"Do you still have possession of your physical card?",
			"Have you noticed any other unusual account activity?",
		}
	case "account_closure":
		return []string{
			"What is your primary reason for wanting to close your account?",
			"Are you aware of any outstanding balance or pending transactions?",
			"Have you explored our retention offers or alternative solutions?",
			"Would you like to transfer or redeem your rewards points first?",
			"Is there anything we can do to address your concerns?",
		}
	case "complaint":
		return []string{
			"Can you describe the specific issue or experience you're unhappy with?",
			"When did this issue occur?",
			"Have you contacted us about this before? If so, what happened?",
			"What outcome or resolution are you hoping for?",
			"Is there any documentation (emails, receipts, etc.) related to this issue?",
		}
	case "technical_issue":
		return []string{
			"What specifically is not working or what error are you experiencing?",
			"When did you first encounter this problem?",
			"What device and browser/app are you using?",
			"What have you already tried to resolve this?",
			"Are you receiving any error messages? If so, what do they say?",
		}
	default:
		return []string{
			"Can you describe the nature of your concern?",
			"What has prompted you to request an escalation?",
			"Have you tried to resolve this issue already? What happened?",
			"How urgent is this matter for you?",
			"What would be a satisfactory resolution for you?",
		}
	}
}

var escalationIssueNames = map[string]string{
	"fraud_security":     "fraud or security concern",
	"account_closure":    "account closure request",
	"complaint":          "complaint",
	"technical_issue":    "technical issue",
	"general_escalation": "concern",
}

// EscalationFollowUps returns the follow-up options shown after a ticket is
// filed for the given escalation type.
func EscalationFollowUps(escalationType string) []string {
	if escalationType == "fraud_security" {
		return []string{"I have more information to add", "Check escalation status", "Speak with fraud team now"}
	}

	return []string{"Add more details to my case", "Check escalation status", "Contact me another way", "I need immediate help"}
}

// wantsToSkipQuestions reports whether the cardholder wants to bypass the
// clarifying questions and escalate immediately.
func wantsToSkipQuestions(query string) bool {
	return containsAny(strings.ToLower(query), escalationSkipKeywords)
}

// NewEscalationAgent builds the specialist that hands complex issues off to
// human support. The first turn asks clarifying questions; once answers come
// back (or the cardholder opts out of the questions) it files a ticket with
// the right specialist team.
func NewEscalationAgent(llm model.Model, tickets *mockdata.TicketService) *DomainAgent {
	cfg := DomainConfig{
		Intents:                 []Intent{IntentEscalation},
		Keywords:                escalationKeywords,
		SingleKeywordConfidence: 0.80,
	}

	return NewDomainAgent("EscalationAgent", llm, cfg, func(o *DomainAgentOptions) {
		o.Instruction = NewInstructionFromFunc(func(runCtx *core.RunContext) (string, error) {
			return escalationInstruction(runCtx, tickets)
		})
		o.Tools = []tool.Tool{newCreateTicketTool(tickets)}
		o.FollowUps = func(string) []string {
			return []string{"Check status of my escalation", "Add more information", "Speak with specialist now"}
		}
		o.ContextUpdates = func(string) map[string]any {
			return map[string]any{"support_category": "escalation"}
		}
	})
}

func escalationInstruction(runCtx *core.RunContext, tickets *mockdata.TicketService) (string, error) {
	query := userQuery(runCtx)

	phase := ""
	if v, ok := runCtx.GetState(stateEscalationPhase); ok {
		phase, _ = v.(string)
	}

	if phase != escalationPhaseGathering && !wantsToSkipQuestions(query) {
		return escalationQuestionInstruction(runCtx, query)
	}

	return escalationTicketInstruction(runCtx, query, tickets)
}

// escalationQuestionInstruction covers the first turn: classify the issue and
// ask the clarifying questions before anything is filed.
func escalationQuestionInstruction(runCtx *core.RunContext, query string) (string, error) {
	escalationType, priority := AssessEscalation(query)
	questions := clarifyingQuestions(escalationType)

	runCtx.SetState(stateEscalationPhase, escalationPhaseGathering)
	runCtx.SetState(stateEscalationType, escalationType)
	runCtx.SetState(stateEscalationPriority, priority)

	runCtx.LogInfo(
		"agent.escalation.gathering",
		"type", escalationType,
		"priority", priority,
		"questions", len(questions),
	)

	var numbered strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, q)
	}

	issueName := escalationIssueNames[escalationType]

	return fmt.Sprintf(`You are a helpful BMO banking assistant handling an escalation request. The cardholder has asked to escalate their %s (priority: %s).

Before a ticket is created you need a few details so the right specialist team handles the case. Respond with:
1. A brief, empathetic acknowledgment of their request (2-3 sentences).
2. A short explanation that a few details will help route them to the right team (1-2 sentences).
3. These questions, clearly numbered:
%s
4. A reassuring closing statement.

Do not create a ticket yet and do not mention any internal tooling. Output only the customer-facing message, kept compact.`,
		issueName, strings.ToUpper(priority), numbered.String()), nil
}

// escalationTicketInstruction covers the second turn: file the ticket and
// confirm the details back to the cardholder.
func escalationTicketInstruction(runCtx *core.RunContext, query string, tickets *mockdata.TicketService) (string, error) {
	escalationType := "general_escalation"
	if v, ok := runCtx.GetState(stateEscalationType); ok {
		if s, _ := v.(string); s != "" {
			escalationType = s
		}
	} else {
		escalationType, _ = AssessEscalation(query)
	}

	ticket, err := tickets.Create(escalationType, summarizeQuery(query), query)
	if err != nil {
		return "", fmt.Errorf("create escalation ticket: %w", err)
	}

	runCtx.SetState(stateEscalationPhase, escalationPhaseCompleted)
	runCtx.SetState(stateEscalationType, ticket.Type)
	runCtx.SetState(stateEscalationPriority, ticket.Priority)
	runCtx.SetState(core.StateEscalation, ticket)

	runCtx.LogInfo(
		"agent.escalation.ticket_created",
		"ticket", ticket.TicketID,
		"type", ticket.Type,
		"priority", ticket.Priority,
	)

	var steps strings.Builder
	for i, step := range ticket.NextSteps {
		fmt.Fprintf(&steps, "%d. %s\n", i+1, step)
	}

	return fmt.Sprintf(`You are a helpful BMO banking assistant confirming an escalation. A ticket has been created. Present these details back to the cardholder in a short table:

- Priority: %s
- Case Number: %s
- Ticket ID: %s
- Assigned To: %s
- Expected Response: within %s
- Status: %s

Then list these next steps as a numbered list:
%s
Close with an empathetic, reassuring message. Output only the customer-facing message, kept compact.`,
		strings.ToUpper(ticket.Priority), ticket.CaseNumber, ticket.TicketID,
		ticket.AssignedTo, ticket.ResponseSLA, ticket.Status, steps.String()), nil
}

func newCreateTicketTool(tickets *mockdata.TicketService) tool.Tool {
	return tool.NewFunctionTool(
		"create_escalation_ticket",
		"Create an escalation ticket routed to the right specialist team",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"escalation_type": map[string]any{
					"type":        "string",
					"enum":        []string{"fraud_security", "account_closure", "complaint", "technical_issue", "general_escalation"},
					"description": "Classified escalation type",
				},
				"summary": map[string]any{
					"type":        "string",
					"description": "One-line summary of the issue",
				},
				"details": map[string]any{
					"type":        "string",
					"description": "Full description including any details the cardholder provided",
				},
			},
			"required": []string{"escalation_type", "summary"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			escalationType, _ := args["escalation_type"].(string)
			summary, _ := args["summary"].(string)
			details, _ := args["details"].(string)

			ticket, err := tickets.Create(escalationType, summary, details)
			if err != nil {
				return nil, err
			}

			toolCtx.SetState(core.StateEscalation, ticket)

			return ticket, nil
		},
	)
}

// summarizeQuery trims a query down to a one-line ticket summary.
func summarizeQuery(query string) string {
	const maxLen = 120

	s := strings.Join(strings.Fields(query), " ")
	if len(s) <= maxLen {
		return s
	}

	// Truncate on a rune boundary so multibyte characters survive intact.
	r := []rune(s)
	if len(r) <= maxLen-3 {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
