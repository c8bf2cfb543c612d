// Package model defines the provider‑agnostic abstractions for interacting
// with completion services inside recallgraph.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool call representation (ToolDefinition, core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (model/openai, model/anthropic) implement the Model interface so
// the flows and the engine remain decoupled from vendor SDKs.
package model
