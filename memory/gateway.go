package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/recallgraph/core"
)

// Options configures a Gateway.
type Options struct {
	// Now returns the write timestamp. Defaults to time.Now.
	Now func() time.Time
	// NewKey returns a fresh record key. Defaults to a random UUID.
	NewKey func() string
}

// Gateway scopes memory access to a user's namespace.
type Gateway struct {
	store core.MemoryStore
	opts  Options
}

// NewGateway wraps store.
func NewGateway(store core.MemoryStore, optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Now:    time.Now,
		NewKey: uuid.NewString,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Gateway{store: store, opts: opts}
}

// Search returns up to limit records of the user ranked by relevance to
// query. An empty namespace yields an empty slice.
func (g *Gateway) Search(ctx context.Context, userID, query string, limit int) ([]core.MemoryRecord, error) {
	if limit <= 0 {
		return []core.MemoryRecord{}, nil
	}

	records, err := g.store.Search(ctx, core.UserMemories(userID), query, limit)
	if err != nil {
		return nil, transient("search memories", err)
	}
	if records == nil {
		records = []core.MemoryRecord{}
	}
	return records, nil
}

// Put writes text as a new record under a fresh key. Keys are never reused,
// so a retried write produces a second record.
func (g *Gateway) Put(ctx context.Context, userID, text string) (core.MemoryRecord, error) {
	rec := core.MemoryRecord{
		Namespace: core.UserMemories(userID),
		Key:       g.opts.NewKey(),
		Value: core.MemoryValue{
			Date: g.opts.Now().UTC().Format(time.RFC3339),
			Data: text,
		},
	}

	if err := g.store.Put(ctx, rec.Namespace, rec.Key, rec.Value); err != nil {
		return core.MemoryRecord{}, transient("put memory", err)
	}
	return rec, nil
}

// transient classifies store failures as transient I/O unless the store
// already classified them or the context ended.
func transient(op string, err error) error {
	if errors.Is(err, core.ErrTransientIO) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrTransientIO, op, err)
}
