package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
)

// Interface compliance (compile-time assertions)
var _ core.MemoryStore = (*InMemoryStore)(nil)

func TestInMemoryStore_EmptyNamespace(t *testing.T) {
	store := NewInMemoryStore()
	res, err := store.Search(context.Background(), core.UserMemories("nobody"), "anything", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || len(res) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", res)
	}
}

func TestInMemoryStore_RankingAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	ns := core.UserMemories("u1")

	put := func(key, data string) {
		if err := store.Put(ctx, ns, key, core.MemoryValue{Date: "d", Data: data}); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}
	put("k1", "weather in Paris is sunny")
	put("k2", "stock price of ACME")
	put("k3", "weather in Berlin")
	put("k4", "unrelated")

	res, err := store.Search(ctx, ns, "Paris weather", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "k1", res[0].Key)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Equal(t, "k3", res[1].Key)
	assert.InDelta(t, 0.5, res[1].Score, 1e-9)
	assert.Equal(t, ns, res[0].Namespace)

	// nothing matches: newest first
	res, err = store.Search(ctx, ns, "zzz", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "k4", res[0].Key)
	assert.Equal(t, "k3", res[1].Key)
}

func TestInMemoryStore_UsersIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Put(ctx, core.UserMemories("alice"), "a", core.MemoryValue{Data: "secret"}))

	res, err := store.Search(ctx, core.UserMemories("bob"), "secret", 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestInMemoryStore_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	ns := core.UserMemories("u")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Put(ctx, ns, fmt.Sprintf("k%d", i), core.MemoryValue{Data: "x"})
		}(i)
	}
	wg.Wait()

	res, err := store.Search(ctx, ns, "x", 100)
	require.NoError(t, err)
	assert.Len(t, res, 50)
}

func TestGateway_PutShapesRecord(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	keys := 0
	gw := NewGateway(store, func(o *Options) {
		o.Now = func() time.Time { return fixed }
		o.NewKey = func() string { keys++; return fmt.Sprintf("key-%d", keys) }
	})

	rec, err := gw.Put(ctx, "u1", "The agent used the tool 'lookup'.")
	require.NoError(t, err)
	assert.Equal(t, core.UserMemories("u1"), rec.Namespace)
	assert.Equal(t, "key-1", rec.Key)
	assert.Equal(t, "2026-03-01T11:00:00Z", rec.Value.Date)

	// a retried write creates a second record
	_, err = gw.Put(ctx, "u1", "The agent used the tool 'lookup'.")
	require.NoError(t, err)

	res, err := gw.Search(ctx, "u1", "lookup", 3)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = gw.Search(ctx, "u2", "lookup", 3)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, core.Namespace, string, core.MemoryValue) error {
	return f.err
}

func (f failingStore) Search(context.Context, core.Namespace, string, int) ([]core.MemoryRecord, error) {
	return nil, f.err
}

func TestGateway_ClassifiesFailures(t *testing.T) {
	gw := NewGateway(failingStore{err: errors.New("connection refused")})

	_, err := gw.Search(context.Background(), "u", "q", 3)
	assert.ErrorIs(t, err, core.ErrTransientIO)

	_, err = gw.Put(context.Background(), "u", "x")
	assert.ErrorIs(t, err, core.ErrTransientIO)

	gw = NewGateway(failingStore{err: context.DeadlineExceeded})
	_, err = gw.Search(context.Background(), "u", "q", 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, core.ErrTransientIO)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"what", "s", "the", "weather", "in", "paris"}, Terms("What's the weather in Paris?"))
	assert.Empty(t, Terms("  ?! "))
}
