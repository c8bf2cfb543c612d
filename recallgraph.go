// Package recallgraph provides a high-level façade over the turn engine.
// Most applications interact with this package by:
//  1. Creating an Agent via New() with a model (stores default to in‑memory)
//  2. Submitting turns per thread with SubmitTurn
//  3. Inspecting or resuming threads with Session and Resume
//
// The façade delegates orchestration to engine.Engine while keeping setup
// concise. Defaults are suitable for local development and tests;
// deployments supply durable stores (session/sqlstore, memory/vector) and a
// structured logger.
package recallgraph

import (
	"context"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/engine"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/memory"
	"github.com/hupe1980/recallgraph/model"
	"github.com/hupe1980/recallgraph/session"
	"github.com/hupe1980/recallgraph/tool"
)

// Options configures the Agent.
type Options struct {
	// Model is required.
	Model model.Model

	// Tools the model may call. Nil means no tools.
	Tools []tool.Tool

	// Stores (default to in-memory implementations if not provided)
	CheckpointStore core.CheckpointStore
	MemoryStore     core.MemoryStore

	// EnableRecallTool registers tool.RecallTool over MemoryStore so the
	// model can query memories explicitly.
	EnableRecallTool bool

	// MaxModelCalls bounds chatbot hops per turn (0 selects the engine default).
	MaxModelCalls int

	// ToolParallelism bounds concurrent tool calls (0 means unbounded).
	ToolParallelism int

	// Persona opens the system instruction.
	Persona string

	// Callbacks observe the turn lifecycle.
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Agent is the high-level façade aggregating the engine and its stores.
type Agent struct {
	opts   Options
	engine *engine.Engine
}

// New creates an Agent. It fails with core.ErrConfiguration when no model is
// set or two tools share a name.
func New(optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		CheckpointStore: session.NewInMemoryStore(),
		MemoryStore:     memory.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	tools := append([]tool.Tool(nil), opts.Tools...)
	if opts.EnableRecallTool && opts.MemoryStore != nil {
		tools = append(tools, tool.NewRecallTool(memory.NewGateway(opts.MemoryStore)))
	}
	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(func(o *engine.Options) {
		o.Model = opts.Model
		o.Tools = registry
		o.Checkpoints = opts.CheckpointStore
		o.Memories = opts.MemoryStore
		o.Logger = opts.Logger
		o.MaxModelCalls = opts.MaxModelCalls
		o.ToolParallelism = opts.ToolParallelism
		if opts.Persona != "" {
			o.Persona = opts.Persona
		}
		o.Callbacks = opts.Callbacks
	})
	if err != nil {
		return nil, err
	}

	return &Agent{opts: opts, engine: eng}, nil
}

// SubmitTurn sends a user message to a thread and returns the final answer.
func (a *Agent) SubmitTurn(ctx context.Context, threadID, userID, text string) (string, error) {
	return a.engine.SubmitTurn(ctx, threadID, userID, text)
}

// Resume completes an interrupted turn of threadID.
func (a *Agent) Resume(ctx context.Context, threadID string) (string, error) {
	return a.engine.Resume(ctx, threadID)
}

// Session returns the latest checkpoint of threadID.
func (a *Agent) Session(ctx context.Context, threadID string) (*core.Session, error) {
	return a.engine.Session(ctx, threadID)
}

// Engine exposes the underlying engine, e.g. for server.NewHandler.
func (a *Agent) Engine() *engine.Engine { return a.engine }
