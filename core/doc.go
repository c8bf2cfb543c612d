// Package core provides the foundational domain types and store contracts used
// by recallgraph. It defines:
//
//   - Turns (role tagged, closed union of parts) and the Session they belong to
//   - The orchestration Stage cursor persisted with every checkpoint
//   - Memory records and namespaces for long-term recall
//   - CheckpointStore / MemoryStore interfaces implemented by backends
//   - ToolContext, the surface handed to tool implementations
//   - The error taxonomy shared by every layer
//
// Concrete persistence, model adapters and the orchestration engine live in
// other packages so that backends can be swapped without dependency cycles.
package core
