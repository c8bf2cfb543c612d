package mcptool

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/tool"
)

// remoteTool forwards calls to a tool hosted by an MCP server.
type remoteTool struct {
	server      string
	client      Client
	name        string
	description string
	parameters  map[string]any
}

func newRemoteTool(server string, c Client, t mcp.Tool) *remoteTool {
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	if t.InputSchema.Type != "" {
		params["type"] = t.InputSchema.Type
	}
	if t.InputSchema.Properties != nil {
		params["properties"] = t.InputSchema.Properties
	}
	if len(t.InputSchema.Required) > 0 {
		params["required"] = t.InputSchema.Required
	}

	return &remoteTool{
		server:      server,
		client:      c,
		name:        t.Name,
		description: t.Description,
		parameters:  params,
	}
}

func (t *remoteTool) Name() string               { return t.name }
func (t *remoteTool) Description() string        { return t.description }
func (t *remoteTool) Parameters() map[string]any { return t.parameters }

func (t *remoteTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	res, err := t.client.CallTool(toolCtx.Context(), req)
	if err != nil {
		return nil, &tool.ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("mcp server %s: %v", t.server, err),
			Code:    tool.CodeExecution,
		}
	}

	text := contentText(res.Content)
	if res.IsError {
		return nil, tool.NewToolError(t.name, text, tool.CodeExecution)
	}
	return text, nil
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	return strings.Join(parts, "\n")
}
