package engine

import (
	"context"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/logging"
)

// CallbackType names a lifecycle point where hooks run. Callbacks execute
// synchronously; a returned error aborts the operation they wrap, which is
// how validation hooks veto runs and state changes.
type CallbackType string

const (
	// CallbackBeforeAgent fires before an agent run starts.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent fires after an agent run completes.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackBeforeModel fires before a model request.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel fires after a model response.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTool fires before a tool executes.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool fires after a tool executes.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError fires when an agent run fails.
	CallbackOnError CallbackType = "on_error"

	// CallbackOnStateChange fires before a state delta is applied to the
	// session. An error here rejects the delta.
	CallbackOnStateChange CallbackType = "on_state_change"
)

// CallbackContext carries what a hook needs to decide and act: the run
// context, the event being processed (nil for run-level hooks), the agent
// involved and the phase that triggered the hook.
type CallbackContext struct {
	RunContext *core.RunContext

	// Event is the event being processed, when the hook is event-scoped.
	Event *core.Event

	AgentID string

	CallbackType CallbackType

	// Metadata is free-form storage for hook-specific data.
	Metadata map[string]interface{}
}

// Callback is a lifecycle hook. Implementations should be fast (they run
// inline) and must not panic.
type Callback interface {
	// Type reports which lifecycle point this callback handles.
	Type() CallbackType

	// Execute runs the hook. A non-nil error aborts the wrapped operation.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts a plain function into a Callback. The metrics
// collector registers its hooks this way.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback wraps fn as a callback for the given lifecycle point.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the lifecycle point this callback handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle events to registered hooks. Hooks for a
// given type run in registration order; the first error stops the chain.
//
// Registration is not synchronized: register everything during startup,
// before the engine serves invocations. Execution after that is safe for
// concurrent use.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager returns an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a hook under its own Type().
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every hook registered for callbackType in order,
// returning the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil
	}

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes a debug line for one lifecycle point. Useful when
// tracing why an orchestration run routed the way it did.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback builds a hook that logs each trigger of callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the lifecycle point this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event.
func (c *LoggingCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	args := []any{"phase", string(c.callbackType), "agent", callbackCtx.AgentID}
	if callbackCtx.Event != nil {
		args = append(args, "event_id", callbackCtx.Event.ID)
	}
	c.logger.Debug("engine.lifecycle", args...)

	return nil
}

// StateValidationCallback checks state deltas before they reach the session
// store. The validator sees only the delta, not the full state; returning an
// error rejects the change and fails the invocation.
type StateValidationCallback struct {
	validator func(stateDelta map[string]interface{}) error
}

// NewStateValidationCallback builds an on-state-change hook around validator.
func NewStateValidationCallback(validator func(stateDelta map[string]interface{}) error) *StateValidationCallback {
	return &StateValidationCallback{
		validator: validator,
	}
}

// Type returns CallbackOnStateChange.
func (c *StateValidationCallback) Type() CallbackType {
	return CallbackOnStateChange
}

// Execute validates the event's state delta, if any.
func (c *StateValidationCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	if c.validator != nil && callbackCtx.Event != nil {
		if callbackCtx.Event.Actions.StateDelta != nil {
			return c.validator(callbackCtx.Event.Actions.StateDelta)
		}
	}
	return nil
}
