package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
)

var (
	_ core.CheckpointStore = (*Store)(nil)
	_ core.MemoryStore     = (*Store)(nil)
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "data", "recall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exerciseCheckpoints runs the checkpoint contract against any dialect.
func exerciseCheckpoints(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, core.ErrCheckpointNotFound)

	sess := core.NewSession("thread-1", "user-1")
	sess.AppendTurn(core.NewUserTurn("What is 2+3?"))
	sess.AppendTurn(core.NewAssistantTurn("", core.ToolCall{ID: "c1", Name: "calculator", Arguments: `{"input":"2+3"}`}))
	sess.AppendTurn(core.NewToolTurn(core.ToolResult{CallID: "c1", ToolName: "calculator", Content: "5"}))
	sess.Stage = core.StageSaveToolResult
	sess.PendingResults = []core.ToolResult{{CallID: "c1", ToolName: "calculator", Content: "5"}}
	sess.Version = 1
	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, core.StageSaveToolResult, got.Stage)
	require.Len(t, got.Turns, 3)
	assert.Equal(t, "calculator", got.Turns[1].ToolCalls()[0].Name)
	assert.Equal(t, "5", got.Turns[2].ToolResults()[0].Content)
	assert.Len(t, got.PendingResults, 1)

	// stale first insert
	require.ErrorIs(t, s.Save(ctx, sess), core.ErrCheckpointConflict)

	got.Version = 2
	got.Stage = core.StageDone
	got.PendingResults = nil
	got.Summary = "User asked for a sum."
	require.NoError(t, s.Save(ctx, got))

	// skipping a version
	got.Version = 4
	require.ErrorIs(t, s.Save(ctx, got), core.ErrCheckpointConflict)

	latest, err := s.Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Version)
	assert.Equal(t, "User asked for a sum.", latest.Summary)
	assert.Empty(t, latest.PendingResults)
}

// exerciseMemories runs the memory store contract against any dialect.
func exerciseMemories(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	ns := core.UserMemories("user-1")

	res, err := s.Search(ctx, ns, "anything", 3)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)

	require.NoError(t, s.Put(ctx, ns, "k1", core.MemoryValue{Date: "2026-01-01T00:00:00Z", Data: "The agent used the tool 'weather'. Paris is sunny"}))
	require.NoError(t, s.Put(ctx, ns, "k2", core.MemoryValue{Date: "2026-01-02T00:00:00Z", Data: "The agent used the tool 'calculator'. 5"}))
	require.NoError(t, s.Put(ctx, ns, "k3", core.MemoryValue{Date: "2026-01-03T00:00:00Z", Data: "unrelated"}))
	// idempotent per key
	require.NoError(t, s.Put(ctx, ns, "k1", core.MemoryValue{Date: "x", Data: "overwritten?"}))
	require.NoError(t, s.Put(ctx, core.UserMemories("user-2"), "k9", core.MemoryValue{Date: "d", Data: "Paris weather secret"}))

	res, err = s.Search(ctx, ns, "weather in Paris", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "k1", res[0].Key)
	assert.Equal(t, "The agent used the tool 'weather'. Paris is sunny", res[0].Value.Data)
	assert.Equal(t, ns, res[0].Namespace)
	// no other match: newest wins the remaining slot
	assert.Equal(t, "k3", res[1].Key)

	for _, r := range res {
		assert.NotEqual(t, "k9", r.Key, "other users' memories must not leak")
	}
}

func TestSQLite_Checkpoints(t *testing.T) {
	exerciseCheckpoints(t, openSQLite(t))
}

func TestSQLite_Memories(t *testing.T) {
	exerciseMemories(t, openSQLite(t))
}

func TestSQLite_ConcurrentThreads(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := core.NewSession(fmt.Sprintf("t%d", i), "u")
			sess.Version = 1
			errs <- s.Save(ctx, sess)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "recall.db")

	s, err := Open(ctx, SQLite, path)
	require.NoError(t, err)
	sess := core.NewSession("t", "u")
	sess.Version = 1
	require.NoError(t, s.Save(ctx, sess))
	require.NoError(t, s.Close())

	s, err = Open(ctx, SQLite, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "u", got.UserID)
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"sqlite":     SQLite,
		"postgresql": Postgres,
		"Postgres":   Postgres,
		"mysql":      MySQL,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDialect("oracle")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNormalizePostgresDSN(t *testing.T) {
	assert.Equal(t, "postgresql://u:p@localhost:5432/db", NormalizePostgresDSN("postgresql+psycopg://u:p@localhost:5432/db"))
	assert.Equal(t, "postgres://u@h/db?sslmode=disable", NormalizePostgresDSN("postgres://u@h/db?sslmode=disable"))
	assert.Equal(t, "host=localhost user=u", NormalizePostgresDSN("host=localhost user=u"))
}

func TestBindPlaceholders(t *testing.T) {
	pg := New(nil, Postgres)
	assert.Equal(t, "a = $1 AND b = $2", pg.bind("a = ? AND b = ?"))

	my := New(nil, MySQL)
	assert.Equal(t, "a = ? AND b = ?", my.bind("a = ? AND b = ?"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Postgres, "")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
