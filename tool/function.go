package tool

import (
	"fmt"
	"time"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/internal/util"
)

// FunctionTool exposes a plain Go function as a Tool. Arguments are validated
// against the declared schema before the function runs, and failures surface
// as *ToolError with a VALIDATION_ERROR or EXECUTION_ERROR code, so callers
// handle every tool the same way. A FunctionTool is immutable after
// construction and safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// NewFunctionTool wraps fn with an explicit parameter schema. The schema uses
// the minimal JSON Schema shape util.ValidateParameters understands.
//
// Example:
//
//	limitTool := NewFunctionTool(
//	  "update_spending_limit",
//	  "Submit a spending limit change request",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "card_id": map[string]any{"type": "string"},
//	      "amount":  map[string]any{"type": "number"},
//	    },
//	    "required": []string{"card_id", "amount"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return submitLimitChange(args["card_id"].(string), args["amount"].(float64))
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the schema from a struct's fields and
// tags, equivalent to passing util.CreateSchema(structType) to
// NewFunctionTool.
//
// Example:
//
//	type LimitArgs struct {
//	  CardID string  `json:"card_id" description:"Card identifier"`
//	  Amount float64 `json:"amount" description:"New monthly limit"`
//	}
//
//	limitTool := NewFunctionToolFromStruct(
//	  "update_spending_limit",
//	  "Submit a spending limit change request",
//	  LimitArgs{},
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return submitLimitChange(args["card_id"].(string), args["amount"].(float64))
//	  },
//	)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	schema := util.CreateSchema(structType)
	return NewFunctionTool(name, description, schema, fn)
}

// Name returns the tool name used in function declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description shown to the model.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the argument schema.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args and invokes the wrapped function. A *ToolError from
// the function is forwarded unchanged so custom codes survive; any other
// error is wrapped as EXECUTION_ERROR.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
