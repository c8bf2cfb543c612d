package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/tool"
)

// MemoryWriter is the write side of the memory gateway.
type MemoryWriter interface {
	Put(ctx context.Context, userID, text string) (core.MemoryRecord, error)
}

// Scope identifies whose turn a dispatch belongs to.
type Scope struct {
	ThreadID string
	UserID   string
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxParallel bounds concurrent tool calls. 0 or less runs every call of
	// a batch at once.
	MaxParallel int
	Logger      logging.Logger
	// OnToolCall observes every finished call.
	OnToolCall func(name string, dur time.Duration, err error)
}

// Dispatcher executes tool calls and records their results.
type Dispatcher struct {
	registry *tool.Registry
	memories MemoryWriter
	opts     DispatcherOptions
}

// NewDispatcher creates a dispatcher over registry writing to memories.
func NewDispatcher(registry *tool.Registry, memories MemoryWriter, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if registry == nil {
		registry, _ = tool.NewRegistry()
	}

	return &Dispatcher{registry: registry, memories: memories, opts: opts}
}

// Dispatch runs calls and returns one result per call in call order.
// Tool failures are folded into results with IsError set; only context
// cancellation fails the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, scope Scope, calls []core.ToolCall) ([]core.ToolResult, error) {
	results := make([]core.ToolResult, len(calls))
	if len(calls) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.opts.MaxParallel > 0 {
		g.SetLimit(d.opts.MaxParallel)
	}

	batchStart := time.Now()
	for i, call := range calls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.execute(gctx, scope, call)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dispatch tools: %w", err)
	}
	// a cancelled tool reports its error as a result; the batch still fails
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dispatch tools: %w", err)
	}

	d.opts.Logger.Debug("dispatcher.batch.complete",
		"count", len(calls),
		"parallelism", d.opts.MaxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return results, nil
}

func (d *Dispatcher) execute(ctx context.Context, scope Scope, call core.ToolCall) core.ToolResult {
	toolCtx := core.NewToolContext(ctx, scope.ThreadID, scope.UserID, call.ID, d.opts.Logger)

	start := time.Now()
	var (
		out any
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &tool.ToolError{Tool: call.Name, Message: fmt.Sprintf("panic: %v", r), Code: tool.CodePanic}
				d.opts.Logger.Error("dispatcher.tool.panic", "tool", call.Name, "recover", r, "stack", string(debug.Stack()))
			}
		}()
		out, err = d.call(toolCtx, call)
	}()
	dur := time.Since(start)

	if d.opts.OnToolCall != nil {
		d.opts.OnToolCall(call.Name, dur, err)
	}
	d.opts.Logger.Info("dispatcher.tool.executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	res := core.ToolResult{CallID: call.ID, ToolName: call.Name}
	if err != nil {
		res.IsError = true
		res.Content = "Error: " + errorText(err)
		return res
	}
	res.Content = stringify(out)
	return res
}

func (d *Dispatcher) call(toolCtx *core.ToolContext, call core.ToolCall) (any, error) {
	impl, ok := d.registry.Lookup(call.Name)
	if !ok {
		return nil, tool.NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), tool.CodeNotFound)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, tool.NewToolError(call.Name, fmt.Sprintf("invalid arguments: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(toolCtx, args)
}

// Record writes one memory per result of a tool that is not read-only. It
// stops at the first failure; the engine replays the whole step, so records
// written before the failure are duplicated once per replay.
func (d *Dispatcher) Record(ctx context.Context, userID string, results []core.ToolResult) error {
	for _, r := range results {
		if impl, ok := d.registry.Lookup(r.ToolName); ok && tool.IsReadOnly(impl) {
			d.opts.Logger.Debug("dispatcher.record.skipped", "tool", r.ToolName, "call_id", r.CallID)
			continue
		}
		if _, err := d.memories.Put(ctx, userID, MemoryText(r)); err != nil {
			return fmt.Errorf("record tool result %s: %w", r.CallID, err)
		}
	}
	return nil
}

// MemoryText is the memory record written for a tool result.
func MemoryText(r core.ToolResult) string {
	return fmt.Sprintf("The agent used the tool '%s'.\nThe result was: %s", r.ToolName, r.Content)
}

func errorText(err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}
	return err.Error()
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
