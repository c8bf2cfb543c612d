package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/model"
)

var _ model.Model = (*Model)(nil)

const messageWithToolUse = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-sonnet-20241022",
  "content": [
    {"type": "text", "text": "Let me check."},
    {"type": "tool_use", "id": "tu_2", "name": "lookup", "input": {"query": "x"}}
  ],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 3, "output_tokens": 4}
}`

func TestModel_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageWithToolUse)
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	m := NewModelFromClient(&client)

	req := model.Request{
		Instructions: "You are a helpful research assistant.",
		Turns: []core.Turn{
			core.NewUserTurn("hi"),
			core.NewAssistantTurn("", core.ToolCall{ID: "tu_1", Name: "lookup", Arguments: `{"query":"a"}`}),
			core.NewToolTurn(core.ToolResult{CallID: "tu_1", ToolName: "lookup", Content: "41"}),
		},
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name: "lookup", Description: "look things up",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []any{"query"},
			},
		}}},
	}

	resp, err := model.Collect(context.Background(), m, req, nil)
	require.NoError(t, err)
	assert.Equal(t, "Let me check.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_2", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"x"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, "tool_use", resp.FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	roles := []string{}
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles)

	toolResult := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", toolResult["type"])
	assert.Equal(t, "tu_1", toolResult["tool_use_id"])

	system := body["system"].([]any)
	assert.Equal(t, "You are a helpful research assistant.", system[0].(map[string]any)["text"])
}

func TestBuildMessages_DropsOrphanToolResults(t *testing.T) {
	msgs := buildMessages([]core.Turn{
		core.NewToolTurn(core.ToolResult{CallID: "gone", ToolName: "lookup", Content: "x"}),
		core.NewUserTurn("next"),
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
}
