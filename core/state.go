package core

// Session state keys written by the orchestration pipeline. Agents and the
// HTTP layer read these instead of re-deriving routing decisions.
const (
	StateIntent                = "intent"
	StateRequiresCollaboration = "requires_collaboration"
	StatePrimaryAgent          = "primary_agent"
	StateSecondaryAgents       = "secondary_agents"
	StateConsultedAgents       = "consulted_agents"
	StateAgentSteps            = "agent_steps"
	StateAgentHandoffs         = "agent_handoffs"
	StateConfidenceScore       = "confidence_score"
	StateEscalationRequired    = "escalation_required"
	StateEscalation            = "escalation"
	StateUserContext           = "user_context"
	StateFinalResponse         = "final_response"
	StateFollowUpOptions       = "follow_up_options"
	StateQuote                 = "quote"
)

// AgentStep is one entry of the per-invocation execution trace kept under
// StateAgentSteps.
type AgentStep struct {
	Agent     string `json:"agent"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// AgentHandoff records a consultation of a second agent for the same query,
// kept under StateAgentHandoffs.
type AgentHandoff struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}
