// Package memory contains the memory gateway and concrete core.MemoryStore
// implementations.
//
// The Gateway is what the rest of the system talks to: it scopes every
// read and write to the (memories, userID) namespace and shapes records
// ({date, data} under a fresh key). Stores only persist and rank.
//
// Backends:
//   - InMemoryStore: process local, keyword scored. Tests and demos.
//   - vector.Store (memory/vector): chromem-go embeddings, optionally persistent.
//   - sqlstore.Store (session/sqlstore): SQL tables shared with checkpoints.
package memory
