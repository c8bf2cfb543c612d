// Package session houses core.CheckpointStore implementations. The
// interface and the Session type live in core; the wiring layer decides
// which backend to instantiate.
//
// InMemoryStore keeps checkpoints in process. The sqlstore sub-package
// persists them to SQLite, Postgres or MySQL and also serves as a keyword
// scored core.MemoryStore over the same connection.
package session
