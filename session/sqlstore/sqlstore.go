// Package sqlstore persists checkpoints and memories in a SQL database.
//
// Supported dialects are SQLite (modernc.org/sqlite), Postgres (lib/pq) and
// MySQL (go-sql-driver/mysql). One Store implements both
// core.CheckpointStore and core.MemoryStore so a deployment needs a single
// connection string.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/recallgraph/core"
)

// Dialect selects driver, placeholders and DDL.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgvector":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return "", fmt.Errorf("%w: unsupported sql driver %q", core.ErrConfiguration, driver)
	}
}

// NormalizePostgresDSN rewrites SQLAlchemy style URLs
// ("postgresql+psycopg://...") into a form lib/pq accepts.
func NormalizePostgresDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme := dsn[:i]
		if j := strings.Index(scheme, "+"); j > 0 {
			return scheme[:j] + dsn[i:]
		}
	}
	return dsn
}

// Store is a SQL backed checkpoint and memory store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	// SQLite allows a single writer; serializing writes avoids SQLITE_BUSY.
	writeMu sync.Mutex
}

// Open connects to dsn, verifies connectivity and ensures the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: %s dsn is empty", core.ErrConfiguration, dialect)
	}

	driverName := string(dialect)
	switch dialect {
	case SQLite:
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		}
	case Postgres:
		dsn = NormalizePostgresDSN(dsn)
	case MySQL:
	default:
		return nil, fmt.Errorf("%w: unsupported dialect %q", core.ErrConfiguration, dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", core.ErrConfiguration, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", core.ErrTransientIO, err)
	}

	s := New(db, dialect)
	if err := s.EnsureTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Call EnsureTables before use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureTables creates the checkpoint and memory tables if missing.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %v", core.ErrTransientIO, err)
		}
	}
	return nil
}

func (s *Store) lockWrites() func() {
	if s.dialect != SQLite {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// placeholder returns the n-th (1-based) bind parameter.
func (s *Store) placeholder(n int) string {
	if s.dialect == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// bind rewrites "?" markers into dialect placeholders.
func (s *Store) bind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(s.placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func schema(d Dialect) []string {
	switch d {
	case Postgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS checkpoints (
				thread_id  VARCHAR(255) PRIMARY KEY,
				user_id    VARCHAR(255) NOT NULL,
				version    BIGINT       NOT NULL,
				stage      VARCHAR(32)  NOT NULL,
				state      TEXT         NOT NULL,
				updated_at BIGINT       NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS memories (
				id         BIGSERIAL    PRIMARY KEY,
				kind       VARCHAR(64)  NOT NULL,
				user_id    VARCHAR(255) NOT NULL,
				mem_key    VARCHAR(255) NOT NULL,
				mem_date   VARCHAR(64)  NOT NULL,
				data       TEXT         NOT NULL,
				created_at BIGINT       NOT NULL,
				UNIQUE (kind, user_id, mem_key)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_ns ON memories(kind, user_id)`,
		}
	case MySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS checkpoints (
				thread_id  VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id    VARCHAR(255) NOT NULL,
				version    BIGINT       NOT NULL,
				stage      VARCHAR(32)  NOT NULL,
				state      LONGTEXT     NOT NULL,
				updated_at BIGINT       NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS memories (
				id         BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
				kind       VARCHAR(64)  NOT NULL,
				user_id    VARCHAR(255) NOT NULL,
				mem_key    VARCHAR(255) NOT NULL,
				mem_date   VARCHAR(64)  NOT NULL,
				data       TEXT         NOT NULL,
				created_at BIGINT       NOT NULL,
				UNIQUE KEY uq_memories_key (kind, user_id, mem_key),
				KEY idx_memories_ns (kind, user_id)
			)`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS checkpoints (
				thread_id  VARCHAR(255) PRIMARY KEY,
				user_id    VARCHAR(255) NOT NULL,
				version    INTEGER      NOT NULL,
				stage      VARCHAR(32)  NOT NULL,
				state      TEXT         NOT NULL,
				updated_at INTEGER      NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS memories (
				id         INTEGER      PRIMARY KEY AUTOINCREMENT,
				kind       VARCHAR(64)  NOT NULL,
				user_id    VARCHAR(255) NOT NULL,
				mem_key    VARCHAR(255) NOT NULL,
				mem_date   VARCHAR(64)  NOT NULL,
				data       TEXT         NOT NULL,
				created_at INTEGER      NOT NULL,
				UNIQUE (kind, user_id, mem_key)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_ns ON memories(kind, user_id)`,
		}
	}
}
