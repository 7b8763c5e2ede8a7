// Package tool implements function calling for the support agents: schema
// validated arguments, uniform error codes, and a ToolContext giving each
// call scoped access to session state, artifacts and memory.
package tool

import (
	"fmt"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/internal/util"
)

// Tool is a callable capability an agent can offer the model. The name and
// description are what the model sees; Parameters is the JSON schema its
// arguments are validated against. Call receives decoded arguments plus a
// ToolContext for state, flow control, memory and artifact access.
// Implementations must be safe for concurrent use, since a model turn can
// fan out several calls at once.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error)
}

// ValidationError is the argument validation failure type, re-exported so
// tool consumers don't import internal/util.
type ValidationError = util.ValidationError

// ToolError is the uniform failure type for tool execution. Code categorizes
// the failure (VALIDATION_ERROR, EXECUTION_ERROR, or a tool-specific code).
type ToolError struct {
	Tool    string      `json:"tool"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError builds a ToolError with the given code.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
