package core

// Part represents a polymorphic segment of a turn. Concrete part types
// implement the unexported isPart marker enabling a closed set; consumers
// switch over TextPart, ToolCallPart and ToolResultPart.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`                  // Provider assigned call id
	Name      string `json:"name"`                // Registry name of the tool
	Arguments string `json:"arguments,omitempty"` // JSON encoded argument object
}

// ToolCallPart wraps a ToolCall as a content part of an assistant turn.
type ToolCallPart struct {
	Call ToolCall
}

func (ToolCallPart) isPart() {}

// ToolResult is the outcome of a single tool execution. Failures are carried
// as data (IsError) so the model can react to them.
type ToolResult struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Content  string `json:"content"`
	IsError  bool   `json:"is_error,omitempty"`
}

// ToolResultPart wraps a ToolResult as a content part of a tool turn.
type ToolResultPart struct {
	Result ToolResult
}

func (ToolResultPart) isPart() {}
