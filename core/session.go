package core

import (
	"context"
	"time"
)

// Stage is the orchestration cursor persisted with a checkpoint. A session
// whose stage is not StageDone has unfinished work that the engine resumes
// before accepting the next user turn.
type Stage string

const (
	StageEntry          Stage = "entry"
	StageSummarize      Stage = "summarize"
	StageChatbot        Stage = "chatbot"
	StageTools          Stage = "tools"
	StageSaveToolResult Stage = "save_tool_result"
	StageDone           Stage = "done"
)

// Session is the conversational state of one thread: the ordered turns, the
// running summary of every turn that compaction removed, and the stage the
// orchestration loop last completed.
//
// A Session is a value owned by whoever holds it. The engine mutates its own
// copy while driving a turn; every other component receives a Clone.
type Session struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Turns    []Turn `json:"turns"`
	Summary  string `json:"summary,omitempty"`

	Stage Stage `json:"stage"`
	// PendingResults holds the tool results produced by the tools stage until
	// the save_tool_result stage has written them to memory.
	PendingResults []ToolResult `json:"pending_results,omitempty"`

	// Version increases by one on every checkpoint write.
	Version int64     `json:"version"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// NewSession creates an empty, completed session for a thread.
func NewSession(threadID, userID string) *Session {
	now := time.Now().UTC()
	return &Session{ThreadID: threadID, UserID: userID, Turns: []Turn{}, Stage: StageDone, Created: now, Updated: now}
}

// AppendTurn appends a turn updating the Updated timestamp.
func (s *Session) AppendTurn(t Turn) {
	s.Turns = append(s.Turns, t)
	s.Updated = time.Now().UTC()
}

// LastTurn returns the most recent turn.
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// LatestUserText returns the text of the most recent user turn.
func (s *Session) LatestUserText() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleUser {
			return s.Turns[i].Text()
		}
	}
	return ""
}

// Resumable reports whether the session stopped before reaching StageDone.
func (s *Session) Resumable() bool {
	return s.Stage != "" && s.Stage != StageDone
}

// Clone returns a deep copy of the session safe for independent mutation.
// Parts are immutable values so copying the slices is sufficient.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		t.Parts = append([]Part(nil), t.Parts...)
		clone.Turns[i] = t
	}
	if s.PendingResults != nil {
		clone.PendingResults = append([]ToolResult(nil), s.PendingResults...)
	}
	return &clone
}

// CheckpointStore persists the latest session snapshot per thread. Save must
// be durable before it returns; the engine does not advance to the next stage
// until it has.
type CheckpointStore interface {
	// Save writes the snapshot. Implementations reject a snapshot whose
	// Version is not exactly one greater than the stored one with
	// ErrCheckpointConflict.
	Save(ctx context.Context, s *Session) error
	// Load returns the latest snapshot or ErrCheckpointNotFound.
	Load(ctx context.Context, threadID string) (*Session, error)
}
