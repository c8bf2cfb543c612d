package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/internal/util"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/model"
	"github.com/hupe1980/recallgraph/tool"
)

// MemorySearchLimit is the number of memories injected into the prompt.
const MemorySearchLimit = 3

// DefaultPersona opens every system instruction.
const DefaultPersona = "You are a helpful research assistant."

const instructionTemplate = `{{ .persona }}
{{- if .summary }}

Here is a summary of the conversation so far:
{{ .summary }}
{{- end }}
{{- if .memories }}

Here is some information from your memory that might be relevant:
{{ join "\n" .memories }}
{{- end }}

Use the available MCP tools to find or manipulate information as needed.`

// ResponderOptions configures a Responder.
type ResponderOptions struct {
	Persona string
	Logger  logging.Logger
	// OnPartial receives streamed chunks. Setting it enables streaming.
	OnPartial func(model.Response)
}

// Responder builds the prompt for a session and calls the model.
type Responder struct {
	model    model.Model
	memories tool.MemorySearcher
	registry *tool.Registry
	opts     ResponderOptions
}

// NewResponder creates a responder. registry may be nil when no tools are
// configured.
func NewResponder(m model.Model, memories tool.MemorySearcher, registry *tool.Registry, optFns ...func(o *ResponderOptions)) *Responder {
	opts := ResponderOptions{
		Persona: DefaultPersona,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Responder{model: m, memories: memories, registry: registry, opts: opts}
}

// Instructions renders the system instruction for sess: persona, summary,
// memories matching the latest user text, and the tool hint.
func (r *Responder) Instructions(ctx context.Context, sess *core.Session) (string, error) {
	records, err := r.memories.Search(ctx, sess.UserID, sess.LatestUserText(), MemorySearchLimit)
	if err != nil {
		return "", fmt.Errorf("retrieve memories: %w", err)
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("Memory from %s: %s", rec.Value.Date, rec.Value.Data))
	}

	return util.RenderTemplate(instructionTemplate, map[string]any{
		"persona":  r.opts.Persona,
		"summary":  sess.Summary,
		"memories": lines,
	})
}

// Generate produces the next assistant response for sess.
func (r *Responder) Generate(ctx context.Context, sess *core.Session) (*model.Response, error) {
	instructions, err := r.Instructions(ctx, sess)
	if err != nil {
		return nil, err
	}

	req := model.Request{
		Instructions: instructions,
		Turns:        append([]core.Turn(nil), sess.Turns...),
		Stream:       r.opts.OnPartial != nil,
	}
	if r.registry != nil && r.registry.Len() > 0 {
		req.Tools = r.registry.Definitions()
	}

	start := time.Now()
	resp, err := model.Collect(ctx, r.model, req, r.opts.OnPartial)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	r.opts.Logger.Debug("responder.generated",
		"model", r.model.Info().Name,
		"tool_calls", len(resp.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}
