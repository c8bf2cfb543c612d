package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/recallgraph/config"
	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/engine"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/memory"
	"github.com/hupe1980/recallgraph/memory/vector"
	"github.com/hupe1980/recallgraph/model"
	"github.com/hupe1980/recallgraph/model/anthropic"
	"github.com/hupe1980/recallgraph/model/openai"
	"github.com/hupe1980/recallgraph/session"
	"github.com/hupe1980/recallgraph/session/sqlstore"
	"github.com/hupe1980/recallgraph/tool"
	"github.com/hupe1980/recallgraph/tool/langchain"
	"github.com/hupe1980/recallgraph/tool/mcptool"
)

// deps are the seams tests replace.
type deps struct {
	loadConfig func(file string) (*config.Config, error)
	newModel   func(cfg config.ModelConfig) (model.Model, error)
	stdin      io.Reader
	logOutput  io.Writer
}

func defaultDeps() deps {
	return deps{
		loadConfig: func(file string) (*config.Config, error) {
			return config.Load(func(o *config.LoadOptions) { o.File = file })
		},
		newModel:  buildModel,
		stdin:     os.Stdin,
		logOutput: os.Stderr,
	}
}

type wireOptions struct {
	configFile string
	mcpServer  string
	onPartial  func(model.Response)
}

type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	engine  *engine.Engine
	toolset *mcptool.Toolset
	closers []io.Closer
}

func wireApp(ctx context.Context, d deps, opts wireOptions) (*app, error) {
	cfg, err := d.loadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}

	lc := cfg.LoggerConfig()
	lc.Output = d.logOutput
	logger := logging.NewLogger(lc)

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx, d, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, d deps, opts wireOptions) error {
	m, err := d.newModel(a.cfg.Model)
	if err != nil {
		return err
	}

	checkpoints, memories, err := a.stores(ctx)
	if err != nil {
		return err
	}

	registry, err := a.tools(ctx, memories, opts.mcpServer)
	if err != nil {
		return err
	}

	a.engine, err = engine.New(func(o *engine.Options) {
		o.Model = m
		o.Tools = registry
		o.Checkpoints = checkpoints
		o.Memories = memories
		o.Logger = a.logger.WithComponent("engine")
		o.MaxModelCalls = a.cfg.Engine.MaxModelCalls
		o.ToolParallelism = a.cfg.Engine.ToolParallelism
		if a.cfg.Engine.Persona != "" {
			o.Persona = a.cfg.Engine.Persona
		}
		o.Callbacks = engine.NewCallbackManager(engine.LoggingCallbacks(a.logger)...)
		o.OnPartial = opts.onPartial
	})
	return err
}

func (a *app) stores(ctx context.Context) (core.CheckpointStore, core.MemoryStore, error) {
	var (
		checkpoints core.CheckpointStore
		sqlStore    *sqlstore.Store
	)
	switch a.cfg.Checkpoint.Driver {
	case "memory":
		checkpoints = session.NewInMemoryStore()
	default:
		dialect, err := sqlstore.ParseDialect(a.cfg.Checkpoint.Driver)
		if err != nil {
			return nil, nil, err
		}
		sqlStore, err = sqlstore.Open(ctx, dialect, a.cfg.Checkpoint.DSN)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, sqlStore)
		checkpoints = sqlStore
	}

	var memories core.MemoryStore
	switch a.cfg.Memory.Driver {
	case "memory":
		memories = memory.NewInMemoryStore()
	case "sql":
		if sqlStore == nil {
			return nil, nil, fmt.Errorf("%w: memory driver sql needs a sql checkpoint store", core.ErrConfiguration)
		}
		memories = sqlStore
	case "chromem":
		vs, err := vector.NewOpenAI(os.Getenv("OPENAI_API_KEY"), a.cfg.Memory.EmbeddingModel, func(o *vector.Options) {
			o.Path = a.cfg.Memory.Path
			o.Compress = a.cfg.Memory.Compress
		})
		if err != nil {
			return nil, nil, err
		}
		memories = vs
	default:
		return nil, nil, fmt.Errorf("%w: unknown memory driver %q", core.ErrConfiguration, a.cfg.Memory.Driver)
	}

	a.logger.Info("stores.ready", "checkpoint", a.cfg.Checkpoint.Driver, "memory", a.cfg.Memory.Driver)
	return checkpoints, memories, nil
}

func (a *app) tools(ctx context.Context, memories core.MemoryStore, onlyServer string) (*tool.Registry, error) {
	registry, err := tool.NewRegistry(
		langchain.Calculator(),
		tool.NewRecallTool(memory.NewGateway(memories)),
	)
	if err != nil {
		return nil, err
	}

	if len(a.cfg.MCPClients) == 0 {
		if onlyServer != "" {
			return nil, fmt.Errorf("%w: mcp server %q not configured", core.ErrConfiguration, onlyServer)
		}
		return registry, nil
	}

	a.toolset = mcptool.NewToolset(func(o *mcptool.Options) { o.Logger = a.logger.WithComponent("mcp") })
	if onlyServer != "" {
		err = a.toolset.ConnectServer(ctx, a.cfg.MCPClients, onlyServer)
	} else {
		err = a.toolset.Connect(ctx, a.cfg.MCPClients)
	}
	if err != nil {
		return nil, err
	}

	for _, t := range a.toolset.Tools() {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	a.logger.Info("tools.ready", "tools", registry.Names())
	return registry, nil
}

// Close releases MCP clients and database handles.
func (a *app) Close() error {
	var errs []error
	if a.toolset != nil {
		errs = append(errs, a.toolset.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Name)
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", core.ErrConfiguration, cfg.Provider)
	}
}
