package tool

import (
	"fmt"
	"strings"

	"github.com/cardassist/cardassist/core"
)

// StateManagerTool lets the model read and write session state, hand off or
// escalate the conversation, and work with artifacts and memory through
// ToolContext. Domain agents register it alongside their domain tools so a
// specialist can persist notes (gathered fraud details, dispute context)
// across turns.
type StateManagerTool struct {
	name        string
	description string
}

// NewStateManagerTool builds the tool. Operations cover state access, flow
// control (transfer, escalate, skip summarization), artifacts and memory.
func NewStateManagerTool() *StateManagerTool {
	return &StateManagerTool{
		name: "state_manager",
		description: "Manages session state, agent flow control, and framework integration. " +
			"Supports operations: get_state, set_state, transfer_agent, escalate, save_artifact, " +
			"load_artifact, search_memory, store_memory.",
	}
}

// Name returns the tool identifier.
func (t *StateManagerTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *StateManagerTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *StateManagerTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"get_state", "set_state", "transfer_agent", "escalate",
					"save_artifact", "load_artifact", "search_memory", "store_memory",
					"list_artifacts", "get_session_history", "skip_summarization",
				},
				"description": "The state management operation to perform",
			},
			"key": map[string]interface{}{
				"type":        "string",
				"description": "State key for get_state/set_state operations",
			},
			"value": map[string]interface{}{
				"description": "Value for set_state operations (any type)",
			},
			"agent_name": map[string]interface{}{
				"type":        "string",
				"description": "Agent name for transfer_agent operation",
			},
			"artifact_id": map[string]interface{}{
				"type":        "string",
				"description": "Artifact identifier for artifact operations",
			},
			"data": map[string]interface{}{
				"type":        "string",
				"description": "Text payload for save_artifact operation",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query for memory operations",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to store in memory",
			},
			"metadata": map[string]interface{}{
				"type":        "object",
				"description": "Metadata for memory storage",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Limit for search operations (default: 10)",
				"default":     10,
			},
		},
		"required": []string{"operation"},
	}
}

// Call dispatches on the operation argument.
func (t *StateManagerTool) Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "get_state":
		return t.getState(args, toolCtx)
	case "set_state":
		return t.setState(args, toolCtx)
	case "transfer_agent":
		return t.transferAgent(args, toolCtx)
	case "escalate":
		toolCtx.Escalate()
		return okResult("Escalation initiated"), nil
	case "save_artifact":
		return t.saveArtifact(args, toolCtx)
	case "load_artifact":
		return t.loadArtifact(args, toolCtx)
	case "search_memory":
		return t.searchMemory(args, toolCtx)
	case "store_memory":
		return t.storeMemory(args, toolCtx)
	case "list_artifacts":
		return t.listArtifacts(toolCtx)
	case "get_session_history":
		return t.sessionHistory(toolCtx)
	case "skip_summarization":
		toolCtx.SkipSummarization()
		return okResult("Summarization will be skipped for this interaction"), nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func okResult(message string) map[string]interface{} {
	return map[string]interface{}{"success": true, "message": message}
}

func requireString(args map[string]interface{}, key, op string) (string, error) {
	v, ok := args[key].(string)
	if !ok {
		return "", fmt.Errorf("%s parameter is required for %s operation", key, op)
	}
	return v, nil
}

func (t *StateManagerTool) getState(args map[string]interface{}, toolCtx *core.ToolContext) (interface{}, error) {
	key, err := requireString(args, "key", "get_state")
	if err != nil {
		return nil, err
	}

	value, exists := toolCtx.GetState(key)
	if !exists {
		value = nil
	}

	return map[string]interface{}{
		"key":    key,
		"exists": exists,
		"value":  value,
	}, nil
}

func (t *StateManagerTool) setState(args map[string]interface{}, toolCtx *core.ToolContext) (interface{}, error) {
	key, err := requireString(args, "key", "set_state")
	if err != nil {
		return nil, err
	}

	value := args["value"]
	toolCtx.SetState(key, value)

	return map[string]interface{}{
		"key":     key,
		"value":   value,
		"success": true,
		"message": fmt.Sprintf("State key '%s' set successfully", key),
	}, nil
}

func (t *StateManagerTool) transferAgent(args map[string]interface{}, toolCtx *core.ToolContext) (interface{}, error) {
	agentName, err := requireString(args, "agent_name", "transfer_agent")
	if err != nil {
		return nil, err
	}

	toolCtx.TransferToAgent(agentName)

	return map[string]interface{}{
		"agent_name": agentName,
		"success":    true,
		"message":    fmt.Sprintf("Transfer to agent '%s' initiated", agentName),
	}, nil
}

func (t *StateManagerTool) saveArtifact(args map[string]interface{}, toolCtx *core.ToolContext) (interface{}, error) {
	artifactID, err := requireString(args, "artifact_id", "save_artifact")
	if err != nil {
		return nil, err
	}

	dataStr, err := requireString(args, "data", "save_artifact")
	if err != nil {
		return nil, err
	}

	data := []byte(dataStr)
	if err := toolCtx.SaveArtifact(artifactID, data); err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}

	return map[string]interface{}{
		"artifact_id": artifactID,
		"size":        len(data),
		"success":     true,
		"message":     fmt.Sprintf("Artifact '%s' saved successfully", artifactID),
	}, nil
}

func (t *StateManagerTool) loadArtifact(args map[string]interface{}, toolCtx *core.ToolContext) (interface{}, error) {
	artifactID, err := requireString(args, "artifact_id", "load_artifact")
	if err != nil {
		return nil, err
	}

	data, err := toolCtx.LoadArtifact(artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	return map[string]interface{}{
		"artifact_id": artifactID,
		"data":        string(data),
		"size":        len(data),
		"success":     true,
	}, nil
}

func (t *StateManagerTool) searchMemory(args map[string]interface{}, toolCtx *core.ToolContext) (interface{}, error) {
	query, err := requireString(args, "query", "search_memory")
	if err != nil {
		return nil, err
	}

	limit := 10
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	results, err := toolCtx.SearchMemory(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search memory: %w", err)
	}

	return map[string]interface{}{
		"query":   query,
		"limit":   limit,
		"count":   len(results),
		"results": results,
		"success": true,
	}, nil
}

func (t *StateManagerTool) storeMemory(args map[string]interface{}, toolCtx *core.ToolContext) (interface{}, error) {
	content, err := requireString(args, "content", "store_memory")
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]interface{})
	if m, ok := args["metadata"].(map[string]interface{}); ok {
		metadata = m
	}

	if err := toolCtx.StoreMemory(content, metadata); err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}

	return map[string]interface{}{
		"content":  content,
		"metadata": metadata,
		"success":  true,
		"message":  "Memory stored successfully",
	}, nil
}

func (t *StateManagerTool) listArtifacts(toolCtx *core.ToolContext) (interface{}, error) {
	artifacts, err := toolCtx.ListArtifacts()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	return map[string]interface{}{
		"artifacts": artifacts,
		"count":     len(artifacts),
		"success":   true,
	}, nil
}

// sessionHistory summarizes the session transcript rather than returning raw
// events: the model only needs to see who said what, not full payloads.
func (t *StateManagerTool) sessionHistory(toolCtx *core.ToolContext) (interface{}, error) {
	history := toolCtx.GetSessionHistory()

	events := make([]map[string]interface{}, len(history))
	for i, ev := range history {
		events[i] = map[string]interface{}{
			"id":          ev.ID,
			"author":      ev.Author,
			"timestamp":   ev.Timestamp,
			"partial":     ev.Partial,
			"has_content": ev.Content != nil,
		}
		if ev.Content != nil && len(ev.Content.Parts) > 0 {
			events[i]["content_summary"] = summarizeParts(ev.Content.Parts)
		}
	}

	return map[string]interface{}{
		"events":  events,
		"count":   len(events),
		"success": true,
	}, nil
}

func summarizeParts(parts []core.Part) string {
	var summary []string
	for _, part := range parts {
		switch p := part.(type) {
		case core.TextPart:
			preview := p.Text
			if len(preview) > 100 {
				preview = preview[:100] + "..."
			}
			summary = append(summary, fmt.Sprintf("text: %s", preview))
		case core.FunctionCallPart:
			summary = append(summary, fmt.Sprintf("function_call: %s", p.FunctionCall.Name))
		case core.FunctionResponsePart:
			summary = append(summary, fmt.Sprintf("function_response: %s", p.FunctionResponse.Name))
		default:
			summary = append(summary, "other")
		}
	}

	return strings.Join(summary, ", ")
}
