// Package mcptool discovers tools exposed by Model Context Protocol servers
// and adapts them to tool.Tool.
//
// A Toolset owns the client connections it opened. Callers close it on
// shutdown; there is no process wide client cache.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/tool"
)

// Supported transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// ServerConfig describes how to reach one MCP server.
type ServerConfig struct {
	Transport string            `mapstructure:"transport" json:"transport"`
	Command   string            `mapstructure:"command" json:"command,omitempty"`
	Args      []string          `mapstructure:"args" json:"args,omitempty"`
	Env       map[string]string `mapstructure:"env" json:"env,omitempty"`
	URL       string            `mapstructure:"url" json:"url,omitempty"`
}

// Client is the subset of the mcp-go client used here. *client.Client
// satisfies it.
type Client interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Options configures a Toolset.
type Options struct {
	ClientName    string
	ClientVersion string
	Logger        logging.Logger
}

// Toolset holds the connected clients and the tools they expose.
type Toolset struct {
	opts Options

	mu      sync.Mutex
	clients map[string]Client
	tools   []tool.Tool
}

// NewToolset creates an empty toolset.
func NewToolset(optFns ...func(o *Options)) *Toolset {
	opts := Options{
		ClientName:    "recallgraph",
		ClientVersion: "0.1.0",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Toolset{opts: opts, clients: make(map[string]Client)}
}

// Connect opens every configured server in name order and collects their
// tools. On failure the clients opened so far stay owned by the toolset.
func (ts *Toolset) Connect(ctx context.Context, servers map[string]ServerConfig) error {
	names := make([]string, 0, len(servers))
	for n := range servers {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if err := ts.connect(ctx, n, servers[n]); err != nil {
			return err
		}
	}
	return nil
}

// ConnectServer opens a single named server from servers.
func (ts *Toolset) ConnectServer(ctx context.Context, servers map[string]ServerConfig, name string) error {
	cfg, ok := servers[name]
	if !ok {
		available := make([]string, 0, len(servers))
		for n := range servers {
			available = append(available, n)
		}
		sort.Strings(available)
		return fmt.Errorf("%w: mcp server %q not found, available: [%s]",
			core.ErrConfiguration, name, strings.Join(available, ", "))
	}
	return ts.connect(ctx, name, cfg)
}

// AddClient registers an already started client under name, initializes it
// and lists its tools.
func (ts *Toolset) AddClient(ctx context.Context, name string, c Client) error {
	ts.mu.Lock()
	if _, exists := ts.clients[name]; exists {
		ts.mu.Unlock()
		return fmt.Errorf("%w: mcp server %q already connected", core.ErrConfiguration, name)
	}
	ts.clients[name] = c
	ts.mu.Unlock()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    ts.opts.ClientName,
		Version: ts.opts.ClientVersion,
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("%w: initialize mcp server %q: %v", core.ErrTransientIO, name, err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("%w: list tools of mcp server %q: %v", core.ErrTransientIO, name, err)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range listed.Tools {
		ts.tools = append(ts.tools, newRemoteTool(name, c, t))
	}

	ts.opts.Logger.Info("mcp.server.connected", "server", name, "tools", len(listed.Tools))
	return nil
}

// Tools returns the discovered tools in discovery order.
func (ts *Toolset) Tools() []tool.Tool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]tool.Tool, len(ts.tools))
	copy(out, ts.tools)
	return out
}

// Close shuts down every client. Errors are joined.
func (ts *Toolset) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var errs []error
	for name, c := range ts.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mcp server %q: %w", name, err))
		}
	}
	ts.clients = make(map[string]Client)
	ts.tools = nil
	return errors.Join(errs...)
}

func (ts *Toolset) connect(ctx context.Context, name string, cfg ServerConfig) error {
	c, err := dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect mcp server %q: %w", name, err)
	}
	return ts.AddClient(ctx, name, c)
}

func dial(ctx context.Context, cfg ServerConfig) (*client.Client, error) {
	switch cfg.Transport {
	case TransportStdio, "":
		if cfg.Command == "" {
			return nil, fmt.Errorf("%w: stdio transport requires a command", core.ErrConfiguration)
		}
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		sort.Strings(env)
		c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrTransientIO, err)
		}
		return c, nil
	case TransportSSE:
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: sse transport requires a url", core.ErrConfiguration)
		}
		c, err := client.NewSSEMCPClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrTransientIO, err)
		}
		return c, nil
	case TransportHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: http transport requires a url", core.ErrConfiguration)
		}
		c, err := client.NewStreamableHttpClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrTransientIO, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown mcp transport %q", core.ErrConfiguration, cfg.Transport)
	}
}
