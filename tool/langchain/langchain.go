// Package langchain adapts langchaingo tools, which take a single string
// input, to tool.Tool.
package langchain

import (
	"encoding/json"
	"fmt"

	lctools "github.com/tmc/langchaingo/tools"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/tool"
)

// Tool wraps a langchaingo tool. The model passes {"input": "..."}.
type Tool struct {
	inner lctools.Tool
}

// Wrap adapts t.
func Wrap(t lctools.Tool) *Tool {
	return &Tool{inner: t}
}

// Calculator returns the langchaingo calculator as a tool.Tool.
func Calculator() *Tool {
	return Wrap(lctools.Calculator{})
}

func (t *Tool) Name() string        { return t.inner.Name() }
func (t *Tool) Description() string { return t.inner.Description() }

func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "Input passed to the tool",
			},
		},
		"required": []string{"input"},
	}
}

// Call forwards the "input" argument. Other argument shapes are passed as
// their JSON encoding.
func (t *Tool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	input, ok := args["input"].(string)
	if !ok {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, tool.NewToolError(t.Name(), fmt.Sprintf("encode input: %v", err), tool.CodeValidation)
		}
		input = string(raw)
	}

	out, err := t.inner.Call(toolCtx.Context(), input)
	if err != nil {
		return nil, tool.NewToolError(t.Name(), err.Error(), tool.CodeExecution)
	}
	return out, nil
}
