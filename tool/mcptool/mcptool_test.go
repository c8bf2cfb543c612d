package mcptool

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/tool"
)

var _ Client = (*client.Client)(nil)

func newLookupServer() *server.MCPServer {
	s := server.NewMCPServer("facts", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(
		mcp.NewTool("lookup",
			mcp.WithDescription("Look up a fact"),
			mcp.WithString("query", mcp.Required(), mcp.Description("What to look up")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			q := req.GetString("query", "")
			if q == "" {
				return mcp.NewToolResultError("empty query"), nil
			}
			return mcp.NewToolResultText("fact about " + q), nil
		},
	)
	return s
}

func TestToolset_InProcess(t *testing.T) {
	ctx := context.Background()

	c, err := client.NewInProcessClient(newLookupServer())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	ts := NewToolset()
	require.NoError(t, ts.AddClient(ctx, "facts", c))
	defer func() { _ = ts.Close() }()

	tools := ts.Tools()
	require.Len(t, tools, 1)
	lookup := tools[0]
	assert.Equal(t, "lookup", lookup.Name())
	assert.Equal(t, "Look up a fact", lookup.Description())
	assert.Equal(t, []string{"query"}, lookup.Parameters()["required"])

	toolCtx := core.NewToolContext(ctx, "t1", "u1", "call-1", logging.NoOpLogger{})
	out, err := lookup.Call(toolCtx, map[string]any{"query": "go"})
	require.NoError(t, err)
	assert.Equal(t, "fact about go", out)

	_, err = lookup.Call(toolCtx, map[string]any{"query": ""})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "empty query", toolErr.Message)

	reg, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	assert.Equal(t, []string{"lookup"}, reg.Names())
}

func TestToolset_ConnectServerUnknownName(t *testing.T) {
	ts := NewToolset()
	servers := map[string]ServerConfig{
		"b": {Transport: TransportStdio, Command: "b"},
		"a": {Transport: TransportSSE, URL: "http://localhost:1"},
	}

	err := ts.ConnectServer(context.Background(), servers, "missing")
	require.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), "available: [a, b]")
}

func TestToolset_InvalidTransport(t *testing.T) {
	ts := NewToolset()

	err := ts.Connect(context.Background(), map[string]ServerConfig{
		"x": {Transport: "carrier-pigeon"},
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	err = ts.Connect(context.Background(), map[string]ServerConfig{
		"y": {Transport: TransportHTTP},
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

type fakeClient struct {
	initErr  error
	closed   bool
	closeErr error
}

func (f *fakeClient) Initialize(context.Context, mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{}, f.initErr
}

func (f *fakeClient) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "noop"}}}, nil
}

func (f *fakeClient) CallTool(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return nil, errors.New("unreachable")
}

func (f *fakeClient) Close() error {
	f.closed = true
	return f.closeErr
}

func TestToolset_CloseOwnsClients(t *testing.T) {
	ctx := context.Background()
	ts := NewToolset()

	ok := &fakeClient{}
	broken := &fakeClient{closeErr: errors.New("pipe closed")}
	require.NoError(t, ts.AddClient(ctx, "ok", ok))
	require.NoError(t, ts.AddClient(ctx, "broken", broken))
	assert.Len(t, ts.Tools(), 2)

	err := ts.AddClient(ctx, "ok", &fakeClient{})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	err = ts.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe closed")
	assert.True(t, ok.closed)
	assert.True(t, broken.closed)
	assert.Empty(t, ts.Tools())
}

func TestToolset_InitializeFailureIsTransient(t *testing.T) {
	ts := NewToolset()
	err := ts.AddClient(context.Background(), "down", &fakeClient{initErr: errors.New("eof")})
	assert.ErrorIs(t, err, core.ErrTransientIO)

	noop := newRemoteTool("down", &fakeClient{}, mcp.Tool{Name: "noop"})
	_, err = noop.Call(core.NewToolContext(context.Background(), "t", "u", "c", logging.NoOpLogger{}), nil)
	assert.ErrorIs(t, err, core.ErrToolExecution)
}
