package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/cardassist/cardassist/core"
)

// Specialist routing keys. The synthesis section and the HTTP layer expose
// these, not the display names.
const (
	KeyPolicy      = "policy"
	KeyAccount     = "account"
	KeyTransaction = "transaction"
	KeyAnalytics   = "analytics"
	KeyEscalation  = "escalation"
)

const (
	collaborationReason = "Multi-domain query collaboration"

	// errorHandlerName marks responses produced by the failure path.
	errorHandlerName = "error_handler"

	// maxFollowUps caps the combined follow-up options after synthesis.
	maxFollowUps = 6
)

const (
	fallbackResponse = "I apologize, but I encountered an error processing your request. " +
		"Please try again or contact support."

	escalationFallbackResponse = "I apologize for the inconvenience. Let me connect you with a " +
		"support specialist immediately. Please hold while I transfer your request."
)

type specialist struct {
	key   string
	agent *DomainAgent
}

// Orchestrator routes each cardholder query to the best-matching specialist
// agent, consults secondary agents for multi-domain queries, synthesizes a
// single response and hands fraud or complaint signals to the escalation
// agent. It implements core.Agent and is the root agent of the deployment.
type Orchestrator struct {
	BaseAgent

	specialists []specialist
}

// OrchestratorName is the registered agent name of the root orchestrator.
const OrchestratorName = "SupportOrchestrator"

// NewOrchestrator wires the five specialists into a routing agent. The
// specialists become sub-agents so lifecycle and branch labels follow the
// usual hierarchy.
func NewOrchestrator(policy, account, transaction, analytics, escalation *DomainAgent) (*Orchestrator, error) {
	o := &Orchestrator{
		BaseAgent: NewBaseAgent(OrchestratorName),
		specialists: []specialist{
			{KeyPolicy, policy},
			{KeyAccount, account},
			{KeyTransaction, transaction},
			{KeyAnalytics, analytics},
			{KeyEscalation, escalation},
		},
	}
	o.SetDescription("Routes corporate card support queries across specialist agents")

	subAgents := make([]core.Agent, 0, len(o.specialists))
	for _, sp := range o.specialists {
		if sp.agent == nil {
			return nil, fmt.Errorf("missing %s specialist", sp.key)
		}
		subAgents = append(subAgents, sp.agent)
	}

	if err := o.SetSubAgents(subAgents...); err != nil {
		return nil, fmt.Errorf("attach specialists: %w", err)
	}

	return o, nil
}

func (o *Orchestrator) find(key string) *DomainAgent {
	for _, sp := range o.specialists {
		if sp.key == key {
			return sp.agent
		}
	}

	return nil
}

// Run executes the full routing pipeline for one user turn. Specialist
// failures never propagate: the cardholder always gets a response, worst
// case the generic fallback.
func (o *Orchestrator) Run(runCtx *core.RunContext) error {
	query := userQuery(runCtx)

	var steps []core.AgentStep
	addStep := func(agentKey, action string) {
		steps = append(steps, core.AgentStep{
			Agent:     agentKey,
			Action:    action,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	cls := ClassifyIntent(query)
	addStep(o.Name(), fmt.Sprintf("classified_intent:%s", cls.Intent))

	runCtx.LogInfo(
		"orchestrator.intent.classified",
		"intent", string(cls.Intent),
		"collaboration", cls.RequiresCollaboration,
	)

	primaryKey, confidence := o.route(query, cls.Intent)
	addStep(o.Name(), fmt.Sprintf("routed_to:%s", primaryKey))

	runCtx.LogInfo(
		"orchestrator.routed",
		"agent", primaryKey,
		"confidence", confidence,
	)

	primary := o.find(primaryKey)
	consulted := []string{primaryKey}
	userContext := o.loadUserContext(runCtx)

	primaryText, err := o.runSpecialist(runCtx, primaryKey)
	if err != nil {
		runCtx.LogError(
			"orchestrator.primary.failed",
			"agent", primaryKey,
			"error", err.Error(),
		)

		return o.emitFailure(runCtx, primaryKey, cls, steps)
	}
	addStep(primaryKey, "executed")

	mergeContext(userContext, primary.ContextUpdates(query))

	var followUps []string
	var quote map[string]any
	activeKey := primaryKey

	if primaryKey == KeyEscalation {
		followUps = o.escalationTurnFollowUps(runCtx)
	} else {
		followUps = primary.FollowUps(query)
		quote = primary.Quote(runCtx.Context, query)
	}

	escalationRequired := false
	escalationReason := ""
	if primaryKey != KeyEscalation {
		if esc, reason := primary.ShouldEscalate(query); esc {
			escalationRequired = true
			escalationReason = reason

			runCtx.LogInfo(
				"orchestrator.escalation.recommended",
				"agent", primaryKey,
				"reason", reason,
			)
		}
	}

	// Multi-domain queries consult every other specialist that still scores
	// above the collaboration threshold. Escalation never collaborates.
	var secondaryKeys []string
	var handoffs []core.AgentHandoff
	finalText := primaryText

	if cls.RequiresCollaboration {
		for _, sp := range o.specialists {
			if sp.key == primaryKey || sp.key == KeyEscalation {
				continue
			}
			if sp.agent.CanHandle(query, cls.Intent) > confidenceFallbackPolicy {
				secondaryKeys = append(secondaryKeys, sp.key)
			}
		}
	}

	if len(secondaryKeys) > 0 {
		var sections strings.Builder
		sections.WriteString("\n\n---\n\n**Additional Information:**\n\n")

		for _, key := range secondaryKeys {
			handoffs = append(handoffs, core.AgentHandoff{
				From:   activeKey,
				To:     key,
				Reason: collaborationReason,
			})
			activeKey = key
			consulted = append(consulted, key)

			runCtx.LogInfo("orchestrator.collaboration", "agent", key)

			text, err := o.runSpecialist(runCtx, key)
			if err != nil {
				runCtx.LogWarn(
					"orchestrator.secondary.failed",
					"agent", key,
					"error", err.Error(),
				)
				continue
			}
			addStep(key, "consulted")

			secondary := o.find(key)
			fmt.Fprintf(&sections, "**From %s:**\n%s\n\n", secondary.Name(), text)
			followUps = append(followUps, secondary.FollowUps(query)...)
			mergeContext(userContext, secondary.ContextUpdates(query))
		}

		finalText += sections.String()
	}

	// A specialist flagged the turn for human handling: the escalation
	// agent's answer replaces whatever was synthesized above.
	if escalationRequired {
		handoffs = append(handoffs, core.AgentHandoff{
			From:   activeKey,
			To:     KeyEscalation,
			Reason: escalationReason,
		})
		consulted = append(consulted, KeyEscalation)
		activeKey = KeyEscalation
		confidence = 1.0
		quote = nil

		text, err := o.runSpecialist(runCtx, KeyEscalation)
		if err != nil {
			runCtx.LogError("orchestrator.escalation.failed", "error", err.Error())

			finalText = escalationFallbackResponse
			followUps = []string{"Contact support now", "Try again later"}
		} else {
			addStep(KeyEscalation, "executed")
			finalText = text
			followUps = o.escalationTurnFollowUps(runCtx)
		}

		mergeContext(userContext, o.find(KeyEscalation).ContextUpdates(query))
	}

	runCtx.SetState(core.StateIntent, string(cls.Intent))
	runCtx.SetState(core.StateRequiresCollaboration, cls.RequiresCollaboration)
	runCtx.SetState(core.StatePrimaryAgent, primaryKey)
	runCtx.SetState(core.StateSecondaryAgents, secondaryKeys)
	runCtx.SetState(core.StateConsultedAgents, consulted)
	runCtx.SetState(core.StateAgentSteps, steps)
	runCtx.SetState(core.StateAgentHandoffs, handoffs)
	runCtx.SetState(core.StateConfidenceScore, confidence)
	runCtx.SetState(core.StateEscalationRequired, false)
	runCtx.SetState(core.StateFinalResponse, finalText)
	runCtx.SetState(core.StateFollowUpOptions, dedupeFollowUps(followUps))
	runCtx.SetState(core.StateUserContext, userContext)
	if quote != nil {
		runCtx.SetState(core.StateQuote, quote)
	} else {
		runCtx.SetState(core.StateQuote, nil)
	}

	runCtx.LogInfo(
		"orchestrator.turn.complete",
		"active_agent", activeKey,
		"consulted", len(consulted),
		"confidence", confidence,
	)

	ev := core.NewMessageEvent(o.Name(), finalText)
	ev.InvocationID = runCtx.RunID
	complete := true
	ev.TurnComplete = &complete

	return runCtx.EmitEvent(ev)
}

// route picks the specialist with the highest CanHandle score, defaulting to
// the policy agent at reduced confidence when nobody claims the query.
func (o *Orchestrator) route(query string, intent Intent) (string, float64) {
	bestKey := ""
	bestConfidence := 0.0

	for _, sp := range o.specialists {
		if c := sp.agent.CanHandle(query, intent); c > bestConfidence {
			bestKey = sp.key
			bestConfidence = c
		}
	}

	if bestKey == "" {
		return KeyPolicy, confidenceFallbackPolicy
	}

	return bestKey, bestConfidence
}

// runSpecialist executes a sub-agent on a child context, forwarding its
// events upstream and capturing the final assistant text. The child's staged
// state is merged back so later pipeline stages can read it.
func (o *Orchestrator) runSpecialist(runCtx *core.RunContext, key string) (string, error) {
	sp := o.find(key)
	if sp == nil {
		return "", fmt.Errorf("unknown specialist %q", key)
	}

	childEmit := make(chan core.Event)
	child := runCtx.NewChildContext(childEmit, runCtx.Resume, buildBranchPath(o.Name(), sp.Name()))

	var finalText string
	done := make(chan struct{})

	go func() {
		defer close(done)

		for ev := range childEmit {
			if ev.Content != nil && ev.Content.Role == "assistant" && !ev.IsPartial() {
				if text := eventText(ev); text != "" {
					finalText = text
				}
			}

			select {
			case runCtx.Emit <- ev:
			case <-runCtx.Context.Done():
				return
			}
		}
	}()

	err := sp.Run(child)
	close(childEmit)
	<-done

	runCtx.ApplyStateDelta(child.StateDelta)

	if err != nil {
		return "", err
	}
	if ctxErr := runCtx.Context.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if finalText == "" {
		return "", fmt.Errorf("specialist %s produced no response", key)
	}

	return finalText, nil
}

// escalationTurnFollowUps picks follow-ups based on where the two-phase
// escalation conversation stands after the agent ran.
func (o *Orchestrator) escalationTurnFollowUps(runCtx *core.RunContext) []string {
	phase := ""
	if v, ok := runCtx.GetState(stateEscalationPhase); ok {
		phase, _ = v.(string)
	}

	if phase == escalationPhaseGathering {
		return []string{"I'd rather speak to someone now", "Skip questions and escalate"}
	}

	escalationType := "general_escalation"
	if v, ok := runCtx.GetState(stateEscalationType); ok {
		if s, _ := v.(string); s != "" {
			escalationType = s
		}
	}

	return EscalationFollowUps(escalationType)
}

// emitFailure produces the generic apology turn. The error itself stays in
// the logs; the cardholder sees a retry prompt.
func (o *Orchestrator) emitFailure(runCtx *core.RunContext, primaryKey string, cls Classification, steps []core.AgentStep) error {
	runCtx.SetState(core.StateIntent, string(cls.Intent))
	runCtx.SetState(core.StatePrimaryAgent, errorHandlerName)
	runCtx.SetState(core.StateConsultedAgents, []string{})
	runCtx.SetState(core.StateAgentSteps, steps)
	runCtx.SetState(core.StateAgentHandoffs, []core.AgentHandoff{})
	runCtx.SetState(core.StateConfidenceScore, 0.0)
	runCtx.SetState(core.StateFinalResponse, fallbackResponse)
	runCtx.SetState(core.StateFollowUpOptions, []string{"Try again", "Contact support"})
	runCtx.SetState(core.StateQuote, nil)

	ev := core.NewMessageEvent(o.Name(), fallbackResponse)
	ev.InvocationID = runCtx.RunID
	complete := true
	ev.TurnComplete = &complete

	return runCtx.EmitEvent(ev)
}

// loadUserContext returns a copy of the persisted conversation context map.
func (o *Orchestrator) loadUserContext(runCtx *core.RunContext) map[string]any {
	out := map[string]any{}

	if v, ok := runCtx.GetState(core.StateUserContext); ok {
		if m, ok := v.(map[string]any); ok {
			for k, val := range m {
				out[k] = val
			}
		}
	}

	return out
}

func mergeContext(dst map[string]any, updates map[string]any) {
	for k, v := range updates {
		dst[k] = v
	}
}

// dedupeFollowUps removes duplicates preserving order and caps the list.
func dedupeFollowUps(options []string) []string {
	seen := make(map[string]struct{}, len(options))
	out := make([]string, 0, len(options))

	for _, opt := range options {
		if _, ok := seen[opt]; ok {
			continue
		}
		seen[opt] = struct{}{}
		out = append(out, opt)

		if len(out) == maxFollowUps {
			break
		}
	}

	return out
}

// eventText concatenates the text parts of an event's content.
func eventText(ev core.Event) string {
	if ev.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, p := range ev.Content.Parts {
		if tp, ok := p.(core.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}

	return sb.String()
}
