// Package agent implements the corporate card support agents.
//
// The package has three layers:
//
//  1. BaseAgent: shared lifecycle and hierarchy plumbing; embed it and
//     implement Run to satisfy core.Agent.
//  2. ModelAgent: a conversational, tool-calling agent that drives a
//     language model through the flow package.
//  3. The support domain: five DomainAgent specialists (policy, account,
//     transaction, analytics, escalation) and the Orchestrator that
//     classifies intent, routes to the best specialist, consults secondary
//     agents for multi-domain queries and synthesizes a single answer.
//
// Routing is deterministic. ClassifyIntent maps a query to an Intent, each
// specialist scores itself via CanHandle, and low-confidence or fraud and
// complaint signals divert to the escalation agent. The model generates the
// conversational text; the envelope around it (confidence, follow-ups,
// policy quotes, escalation tickets) is computed in code so it stays
// auditable.
package agent
