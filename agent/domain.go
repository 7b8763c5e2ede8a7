package agent

import (
	"context"
	"strings"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/tool"
)

// Routing confidence levels shared by all domain agents. An intent match
// outranks keyword matches; two or more keywords outrank a single one.
const (
	confidenceIntentMatch    = 0.95
	confidenceMultiKeyword   = 0.90
	confidenceFallbackPolicy = 0.50
)

// DomainConfig declares a domain agent's routing profile: which intents it
// owns and which query keywords signal its domain.
type DomainConfig struct {
	// Intents this agent handles with full confidence.
	Intents []Intent

	// Keywords signalling the agent's domain in free-form queries.
	Keywords []string

	// SingleKeywordConfidence is the routing confidence when exactly one
	// keyword matches. Varies per domain.
	SingleKeywordConfidence float64
}

// DomainAgent is a specialist support agent for one card-support domain.
// It extends ModelAgent with deterministic routing (CanHandle) and
// deterministic response envelope pieces (follow-up options, quote data,
// escalation signals) that wrap the model-generated text.
type DomainAgent struct {
	*ModelAgent

	cfg DomainConfig

	followUpsFn func(query string) []string
	quoteFn     func(ctx context.Context, query string) map[string]any
	escalateFn  func(query string) (bool, string)
	contextFn   func(query string) map[string]any
}

// DomainAgentOptions configure the deterministic envelope of a DomainAgent.
type DomainAgentOptions struct {
	// FollowUps derives suggested follow-up options from the query.
	FollowUps func(query string) []string

	// Quote derives structured card data to display alongside the answer.
	Quote func(ctx context.Context, query string) map[string]any

	// Escalate reports whether the query should be handed to the
	// escalation agent, with a reason.
	Escalate func(query string) (bool, string)

	// ContextUpdates derives conversation context updates from the query.
	ContextUpdates func(query string) map[string]any

	// Instruction is the system prompt for the underlying model agent.
	Instruction Instruction

	// Tools to register with the underlying model agent.
	Tools []tool.Tool
}

// NewDomainAgent builds a domain agent around a language model. Streaming
// and transfer are disabled: the orchestrator collects a single final
// response per sub-agent turn.
func NewDomainAgent(name string, llm model.Model, cfg DomainConfig, optFns ...func(o *DomainAgentOptions)) *DomainAgent {
	opts := DomainAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	modelOpts := func(o *ModelAgentOptions) {
		o.EnableStreaming = false
		o.AllowTransfer = false
		if opts.Instruction.IsStatic() && opts.Instruction.text == "" {
			return
		}
		o.Instruction = opts.Instruction
	}

	a := &DomainAgent{
		ModelAgent:  NewModelAgent(name, llm, modelOpts),
		cfg:         cfg,
		followUpsFn: opts.FollowUps,
		quoteFn:     opts.Quote,
		escalateFn:  opts.Escalate,
		contextFn:   opts.ContextUpdates,
	}

	a.RegisterTools(opts.Tools...)
	// Every specialist can persist notes and signal escalation via state.
	a.RegisterTool(tool.NewStateManagerTool())

	return a
}

// CanHandle scores how well this agent matches a query. The score feeds
// the orchestrator's routing decision.
func (a *DomainAgent) CanHandle(query string, intent Intent) float64 {
	for _, in := range a.cfg.Intents {
		if in == intent {
			return confidenceIntentMatch
		}
	}

	switch matches := countMatches(strings.ToLower(query), a.cfg.Keywords); {
	case matches >= 2:
		return confidenceMultiKeyword
	case matches == 1:
		return a.cfg.SingleKeywordConfidence
	default:
		return 0
	}
}

// FollowUps returns suggested follow-up options for the given query.
func (a *DomainAgent) FollowUps(query string) []string {
	if a.followUpsFn == nil {
		return nil
	}

	return a.followUpsFn(strings.ToLower(query))
}

// Quote returns structured card data for display alongside the response,
// or nil when the query does not call for one.
func (a *DomainAgent) Quote(ctx context.Context, query string) map[string]any {
	if a.quoteFn == nil {
		return nil
	}

	return a.quoteFn(ctx, query)
}

// ShouldEscalate reports whether the query warrants escalation to a human.
func (a *DomainAgent) ShouldEscalate(query string) (bool, string) {
	if a.escalateFn == nil {
		return false, ""
	}

	return a.escalateFn(strings.ToLower(query))
}

// ContextUpdates returns conversation context updates derived from the query.
func (a *DomainAgent) ContextUpdates(query string) map[string]any {
	if a.contextFn == nil {
		return nil
	}

	return a.contextFn(strings.ToLower(query))
}

// queryContainsAny reports whether any of the words appears in the query.
// Callers are expected to pass a lowercased query.
func queryContainsAny(query string, words ...string) bool {
	return containsAny(query, words)
}

// userQuery extracts the text of the user's current message from the
// invocation context. Non-text parts are ignored.
func userQuery(runCtx *core.RunContext) string {
	var sb strings.Builder
	for _, p := range runCtx.UserContent.Parts {
		if tp, ok := p.(core.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}

	return sb.String()
}
