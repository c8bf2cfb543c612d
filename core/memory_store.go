package core

import "context"

// MemoriesKind is the namespace kind holding tool-derived memories.
const MemoriesKind = "memories"

// Namespace scopes memory records. All records written by the engine live in
// (MemoriesKind, userID) so one user's memories are never visible to another.
type Namespace struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id"`
}

// UserMemories returns the memories namespace of a user.
func UserMemories(userID string) Namespace {
	return Namespace{Kind: MemoriesKind, UserID: userID}
}

// String renders the namespace as "kind/user".
func (n Namespace) String() string { return n.Kind + "/" + n.UserID }

// MemoryValue is the payload of a memory record. Date is an RFC 3339 UTC
// timestamp captured at write time.
type MemoryValue struct {
	Date string `json:"date"`
	Data string `json:"data"`
}

// MemoryRecord is a retrieved memory with its relevance score. Records are
// immutable once written.
type MemoryRecord struct {
	Namespace Namespace   `json:"namespace"`
	Key       string      `json:"key"`
	Value     MemoryValue `json:"value"`
	Score     float64     `json:"score,omitempty"`
}

// MemoryStore persists memory records and retrieves them by similarity.
// Implementations may back Search with embeddings, keywords or any
// heuristic. Search on an empty or unknown namespace returns an empty slice
// and a nil error.
type MemoryStore interface {
	Put(ctx context.Context, ns Namespace, key string, value MemoryValue) error
	Search(ctx context.Context, ns Namespace, query string, limit int) ([]MemoryRecord, error)
}
