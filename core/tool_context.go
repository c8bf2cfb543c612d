package core

import (
	"context"

	"github.com/hupe1980/recallgraph/logging"
)

// ToolContext is the constrained surface handed to a tool implementation for
// one call. It carries cancellation, the identifiers of the thread and user
// the call was made for, and a logger. Tools cannot reach session state or
// stores through it; whatever they return is recorded by the engine.
type ToolContext struct {
	ctx      context.Context
	threadID string
	userID   string
	callID   string
	logger   logging.Logger
}

// NewToolContext constructs a tool context bound to ctx and a tool call id.
// A nil logger is replaced by logging.NoOpLogger.
func NewToolContext(ctx context.Context, threadID, userID, callID string, logger logging.Logger) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:      ctx,
		threadID: threadID,
		userID:   userID,
		callID:   callID,
		logger:   logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// ThreadID returns the thread the call belongs to.
func (tc *ToolContext) ThreadID() string { return tc.threadID }

// UserID returns the user the call is made on behalf of.
func (tc *ToolContext) UserID() string { return tc.userID }

// CallID returns the model assigned tool call id.
func (tc *ToolContext) CallID() string { return tc.callID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }
