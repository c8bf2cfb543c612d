package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/recallgraph/core"
)

// MemorySearcher is the read side of the memory gateway.
type MemorySearcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]core.MemoryRecord, error)
}

// RecallTool lets the model query the current user's long-term memory
// explicitly, on top of the memories injected into the system prompt.
type RecallTool struct {
	memories     MemorySearcher
	defaultLimit int
}

// NewRecallTool creates a recall tool backed by the given searcher.
func NewRecallTool(memories MemorySearcher) *RecallTool {
	return &RecallTool{memories: memories, defaultLimit: 5}
}

// Name returns the tool identifier.
func (t *RecallTool) Name() string { return "recall_memory" }

// ReadOnly marks recall results as restated memories.
func (t *RecallTool) ReadOnly() bool { return true }

// Description returns the tool description.
func (t *RecallTool) Description() string {
	return "Search the user's long-term memory of earlier tool results. Input is a natural language query."
}

// Parameters returns the JSON schema for tool parameters.
func (t *RecallTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look for",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of memories (default: 5)",
			},
		},
		"required": []string{"query"},
	}
}

// Call searches the memories namespace of the user the call belongs to.
func (t *RecallTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, NewToolError(t.Name(), "query parameter is required", CodeValidation)
	}

	limit := t.defaultLimit
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	records, err := t.memories.Search(toolCtx.Context(), toolCtx.UserID(), query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	if len(records) == 0 {
		return "No relevant memories found.", nil
	}

	var sb strings.Builder
	for i, r := range records {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", i+1, r.Value.Date, r.Value.Data)
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}
