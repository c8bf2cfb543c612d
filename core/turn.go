package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one message in a thread. After it has been appended to a session it
// must be treated as immutable; compaction removes whole turns by ID and never
// edits them.
//
// Shape by role:
//   - user: one or more TextParts
//   - assistant: optional TextPart plus zero or more ToolCallParts
//   - tool: exactly one ToolResultPart
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

// NewID generates a new unique identifier for turns and memory keys.
func NewID() string { return uuid.NewString() }

func newTurn(role Role, parts ...Part) Turn {
	return Turn{
		ID:        NewID(),
		Role:      role,
		Parts:     parts,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserTurn creates a user-authored text turn.
func NewUserTurn(text string) Turn {
	return newTurn(RoleUser, TextPart{Text: text})
}

// NewAssistantTurn creates an assistant turn from optional text and the tool
// calls the model requested. Empty text is omitted.
func NewAssistantTurn(text string, calls ...ToolCall) Turn {
	parts := make([]Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, TextPart{Text: text})
	}
	for _, c := range calls {
		parts = append(parts, ToolCallPart{Call: c})
	}
	return newTurn(RoleAssistant, parts...)
}

// NewToolTurn records the result of a single tool execution.
func NewToolTurn(result ToolResult) Turn {
	return newTurn(RoleTool, ToolResultPart{Result: result})
}

// Text concatenates all text parts (for tool turns: the result content).
func (t Turn) Text() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		switch part := p.(type) {
		case TextPart:
			sb.WriteString(part.Text)
		case ToolResultPart:
			sb.WriteString(part.Result.Content)
		case ToolCallPart:
		}
	}
	return sb.String()
}

// ToolCalls returns the tool call parts in their original order.
func (t Turn) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range t.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.Call)
		}
	}
	return calls
}

// ToolResults returns the tool result parts in their original order.
func (t Turn) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range t.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.Result)
		}
	}
	return results
}

// ToolName returns the tool name of a tool turn or "".
func (t Turn) ToolName() string {
	if r := t.ToolResults(); len(r) > 0 {
		return r[0].ToolName
	}
	return ""
}

// IsFinal reports whether the turn is an assistant answer without pending
// tool calls.
func (t Turn) IsFinal() bool {
	return t.Role == RoleAssistant && len(t.ToolCalls()) == 0
}

// wirePart is the tagged JSON form of a Part.
type wirePart struct {
	Type   string      `json:"type"`
	Text   string      `json:"text,omitempty"`
	Call   *ToolCall   `json:"call,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
}

type wireTurn struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Parts     []wirePart `json:"parts"`
	Timestamp time.Time  `json:"timestamp"`
}

// MarshalJSON encodes the part union with an explicit type tag so
// checkpoints can be restored by any backend.
func (t Turn) MarshalJSON() ([]byte, error) {
	w := wireTurn{ID: t.ID, Role: t.Role, Timestamp: t.Timestamp, Parts: make([]wirePart, 0, len(t.Parts))}
	for _, p := range t.Parts {
		switch part := p.(type) {
		case TextPart:
			w.Parts = append(w.Parts, wirePart{Type: "text", Text: part.Text})
		case ToolCallPart:
			c := part.Call
			w.Parts = append(w.Parts, wirePart{Type: "tool_call", Call: &c})
		case ToolResultPart:
			r := part.Result
			w.Parts = append(w.Parts, wirePart{Type: "tool_result", Result: &r})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged form produced by MarshalJSON.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var w wireTurn
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parts := make([]Part, 0, len(w.Parts))
	for _, wp := range w.Parts {
		switch wp.Type {
		case "text":
			parts = append(parts, TextPart{Text: wp.Text})
		case "tool_call":
			if wp.Call == nil {
				return fmt.Errorf("tool_call part without call")
			}
			parts = append(parts, ToolCallPart{Call: *wp.Call})
		case "tool_result":
			if wp.Result == nil {
				return fmt.Errorf("tool_result part without result")
			}
			parts = append(parts, ToolResultPart{Result: *wp.Result})
		default:
			return fmt.Errorf("unknown part type %q", wp.Type)
		}
	}
	*t = Turn{ID: w.ID, Role: w.Role, Parts: parts, Timestamp: w.Timestamp}
	return nil
}
