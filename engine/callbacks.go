package engine

import (
	"context"
	"time"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/model"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Callbacks hook into the turn loop without modifying it. They run
// synchronously on the goroutine driving the turn; a callback returning an
// error aborts the current stage exactly like a failed step, so the last
// committed checkpoint stays authoritative.
//
// Available callback types:
//   - BeforeModel/AfterModel: around every completion request
//   - BeforeTools/AfterTools: around a batch of tool calls
//   - OnTransition: before a stage change is checkpointed
//   - OnError: when a turn fails
type CallbackType string

const (
	// CallbackBeforeModel is triggered before the responder calls the model.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel is triggered after the model answered.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackBeforeTools is triggered before a batch of tool calls runs.
	CallbackBeforeTools CallbackType = "before_tools"

	// CallbackAfterTools is triggered after a batch of tool calls finished.
	CallbackAfterTools CallbackType = "after_tools"

	// CallbackOnTransition is triggered before the session is checkpointed at
	// its next stage. Use for validation or auditing.
	CallbackOnTransition CallbackType = "on_transition"

	// CallbackOnError is triggered when a turn fails. Its return value is
	// ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect. Fields not relevant
// to the callback type are zero.
type CallbackContext struct {
	ThreadID string
	UserID   string

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// From and To are the stages of a transition.
	From core.Stage
	To   core.Stage

	// Session is a clone of the session at the time of the callback.
	Session *core.Session

	Response  *model.Response
	ToolCalls []core.ToolCall
	Results   []core.ToolResult

	// Duration of the model call or tool batch that just finished.
	Duration time.Duration
	Err      error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for turn lifecycle hooks.
//
// Implementations should be fast and free of side effects on the session;
// they receive clones.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	// Returning an error will terminate the associated operation.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackOnTransition,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("%s: %s -> %s", cc.ThreadID, cc.From, cc.To)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks by type and runs them in registration
// order. The first error stops the chain.
//
// Register every callback before handing the manager to the engine; after
// that, execution is safe for concurrent use.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager(callbacks ...Callback) *CallbackManager {
	cm := &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
	for _, cb := range callbacks {
		cm.RegisterCallback(cb)
	}
	return cm
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil // No callbacks registered for this type
	}

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallbacks returns callbacks writing model calls, tool batches and
// transitions to a structured logger.
func LoggingCallbacks(logger *logging.StructuredLogger) []Callback {
	return []Callback{
		NewFunctionCallback(CallbackAfterModel, func(_ context.Context, cc *CallbackContext) error {
			tokens := 0
			if cc.Response != nil && cc.Response.Usage != nil {
				tokens = cc.Response.Usage.TotalTokens
			}
			model := ""
			if cc.Metadata != nil {
				model, _ = cc.Metadata["model"].(string)
			}
			logger.WithThread(cc.ThreadID, cc.UserID).LogModelCall(model, tokens, cc.Duration, cc.Err)
			return nil
		}),
		NewFunctionCallback(CallbackAfterTools, func(_ context.Context, cc *CallbackContext) error {
			l := logger.WithThread(cc.ThreadID, cc.UserID)
			for _, r := range cc.Results {
				var err error
				if r.IsError {
					err = core.ErrToolExecution
				}
				l.LogToolCall(r.ToolName, cc.Duration, err)
			}
			return nil
		}),
		NewFunctionCallback(CallbackOnTransition, func(_ context.Context, cc *CallbackContext) error {
			var version int64
			if cc.Session != nil {
				version = cc.Session.Version
			}
			logger.WithThread(cc.ThreadID, cc.UserID).LogTransition(string(cc.From), string(cc.To), version)
			return nil
		}),
		NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
			logger.WithThread(cc.ThreadID, cc.UserID).Error("engine.turn.failed", "stage", string(cc.From), "error", cc.Err)
			return nil
		}),
	}
}

// SessionValidationCallback rejects transitions whose session fails a
// validator. The session passed to the validator is the state about to be
// checkpointed.
//
// Example:
//
//	callback := NewSessionValidationCallback(func(s *core.Session) error {
//	    if len(s.Turns) > 200 {
//	        return errors.New("conversation too long")
//	    }
//	    return nil
//	})
type SessionValidationCallback struct {
	validator func(sess *core.Session) error
}

// NewSessionValidationCallback creates a new session validation callback.
func NewSessionValidationCallback(validator func(sess *core.Session) error) *SessionValidationCallback {
	return &SessionValidationCallback{
		validator: validator,
	}
}

// Type returns the callback type (always CallbackOnTransition).
func (c *SessionValidationCallback) Type() CallbackType {
	return CallbackOnTransition
}

// Execute validates the session about to be checkpointed.
func (c *SessionValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator != nil && callbackCtx.Session != nil {
		return c.validator(callbackCtx.Session)
	}
	return nil
}
