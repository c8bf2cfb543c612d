package testutil

import (
	"fmt"

	"github.com/hupe1980/recallgraph/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("thread-1", "user-1").Summary("s").Turns(Conversation(4)...).Build()
type SessionBuilder struct {
	threadID string
	userID   string
	summary  string
	stage    core.Stage
	turns    []core.Turn
	pending  []core.ToolResult
	version  int64
}

// NewSessionBuilder creates a new builder for a completed session.
func NewSessionBuilder(threadID, userID string) *SessionBuilder {
	return &SessionBuilder{threadID: threadID, userID: userID, stage: core.StageDone}
}

// Summary sets the running summary (chainable).
func (b *SessionBuilder) Summary(s string) *SessionBuilder { b.summary = s; return b }

// Stage sets the orchestration cursor (chainable).
func (b *SessionBuilder) Stage(s core.Stage) *SessionBuilder { b.stage = s; return b }

// Version sets the checkpoint version (chainable).
func (b *SessionBuilder) Version(v int64) *SessionBuilder { b.version = v; return b }

// Turns appends turns to the history (chainable).
func (b *SessionBuilder) Turns(ts ...core.Turn) *SessionBuilder {
	b.turns = append(b.turns, ts...)
	return b
}

// Pending sets tool results awaiting the save_tool_result stage (chainable).
func (b *SessionBuilder) Pending(rs ...core.ToolResult) *SessionBuilder {
	b.pending = append(b.pending, rs...)
	return b
}

// Build finalizes the session.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.threadID, b.userID)
	s.Summary = b.summary
	s.Stage = b.stage
	s.Version = b.version
	s.Turns = append(s.Turns, b.turns...)
	s.PendingResults = append(s.PendingResults, b.pending...)
	return s
}

// Conversation returns n turns alternating user and assistant text, starting
// with a user turn. Texts are numbered ("user 1", "assistant 2", ...).
func Conversation(n int) []core.Turn {
	turns := make([]core.Turn, 0, n)
	for i := 1; i <= n; i++ {
		if i%2 == 1 {
			turns = append(turns, core.NewUserTurn(fmt.Sprintf("user %d", i)))
		} else {
			turns = append(turns, core.NewAssistantTurn(fmt.Sprintf("assistant %d", i)))
		}
	}
	return turns
}
