package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/recallgraph/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by flows.
type Request struct {
	Instructions string           `json:"instructions"` // System instruction
	Turns        []core.Turn      `json:"turns"`        // Conversation, oldest first
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. The final
// response carries the complete text and every requested tool call.
type Response struct {
	ID           string          `json:"id"`
	Partial      bool            `json:"partial"`
	Text         string          `json:"text"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Turn converts the response into an assistant turn.
func (r *Response) Turn() core.Turn {
	return core.NewAssistantTurn(r.Text, r.ToolCalls...)
}

// HasToolCalls reports whether the response is non-terminal.
func (r *Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by flows to drive generation.
// Implementations emit zero or more partial responses followed by exactly one
// final response, or a single error. Both channels are closed when done.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call and returns the final response. Partial
// chunks are forwarded to onPartial when it is non-nil. Any failure is
// wrapped with core.ErrModel unless it is a context error.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response)) (*Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if onPartial != nil {
					onPartial(r)
				}
				continue
			}
			resp := r
			final = &resp
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: %s: %v", core.ErrModel, m.Info().Provider, err)
			}
		}
	}

	if final == nil {
		return nil, fmt.Errorf("%w: %s: no final response", core.ErrModel, m.Info().Provider)
	}

	return final, nil
}

// ScriptedModel is an in‑memory Model that replays queued responses in order
// and records every request it receives. It is the test double used across
// the repository.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	script   []func(Request) (*Response, error)
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{info: Info{Name: name, Provider: "scripted", SupportsTools: true}}
}

// Reply queues a terminal text response.
func (m *ScriptedModel) Reply(text string) *ScriptedModel {
	return m.Then(func(Request) (*Response, error) {
		return &Response{Text: text, FinishReason: "stop"}, nil
	})
}

// CallTools queues a non-terminal response requesting the given tool calls.
func (m *ScriptedModel) CallTools(calls ...core.ToolCall) *ScriptedModel {
	return m.Then(func(Request) (*Response, error) {
		return &Response{ToolCalls: calls, FinishReason: "tool_calls"}, nil
	})
}

// Fail queues a failure.
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	return m.Then(func(Request) (*Response, error) { return nil, err })
}

// Then queues an arbitrary step.
func (m *ScriptedModel) Then(step func(Request) (*Response, error)) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, step)
	return m
}

// Requests returns a copy of the recorded requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Remaining returns the number of queued steps not yet consumed.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// Generate implements Model. When the script is exhausted it echoes the
// last user text so unexpected calls are visible in assertions.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step func(Request) (*Response, error)
	if len(m.script) > 0 {
		step, m.script = m.script[0], m.script[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}

		if step == nil {
			respCh <- Response{Text: "Scripted response to: " + lastText(req.Turns), FinishReason: "stop"}
			return
		}

		resp, err := step(req)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream && resp.Text != "" {
			for _, w := range strings.SplitAfter(resp.Text, " ") {
				respCh <- Response{Partial: true, Text: w}
			}
		}
		respCh <- *resp
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

func lastText(turns []core.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	return turns[len(turns)-1].Text()
}
