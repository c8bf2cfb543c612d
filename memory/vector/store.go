// Package vector implements core.MemoryStore on top of chromem-go, an
// embeddable vector database. Each namespace maps to one collection.
package vector

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hupe1980/recallgraph/core"
)

const (
	metaDate = "date"
	metaKind = "kind"
	metaUser = "user_id"
)

// Options configures a Store.
type Options struct {
	// Path enables persistence to a directory. Empty keeps data in memory.
	Path string
	// Compress gzips persisted documents.
	Compress bool
}

// Store is an embedding backed MemoryStore.
type Store struct {
	mu      sync.Mutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
}

// New creates a store using embedFn for documents and queries.
func New(embedFn chromem.EmbeddingFunc, optFns ...func(o *Options)) (*Store, error) {
	if embedFn == nil {
		return nil, fmt.Errorf("%w: vector store requires an embedding function", core.ErrConfiguration)
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	db := chromem.NewDB()
	if opts.Path != "" {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create vector store dir: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: open vector store: %v", core.ErrConfiguration, err)
		}
	}

	return &Store{db: db, embedFn: embedFn}, nil
}

// NewOpenAI creates a store embedding with the OpenAI embeddings API.
func NewOpenAI(apiKey, model string, optFns ...func(o *Options)) (*Store, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key required for embeddings", core.ErrConfiguration)
	}
	return New(chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model)), optFns...)
}

func collectionName(ns core.Namespace) string {
	return fmt.Sprintf("%s_%s", ns.Kind, ns.UserID)
}

func (s *Store) collection(ns core.Namespace, create bool) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := collectionName(ns)
	if col := s.db.GetCollection(name, s.embedFn); col != nil {
		return col, nil
	}
	if !create {
		return nil, nil
	}
	col, err := s.db.CreateCollection(name, map[string]string{metaKind: ns.Kind, metaUser: ns.UserID}, s.embedFn)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	return col, nil
}

// Put embeds and stores value.Data under key.
func (s *Store) Put(ctx context.Context, ns core.Namespace, key string, value core.MemoryValue) error {
	col, err := s.collection(ns, true)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:      key,
		Content: value.Data,
		Metadata: map[string]string{
			metaDate: value.Date,
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: add document: %v", core.ErrTransientIO, err)
	}
	return nil
}

// Search returns the limit nearest records to query.
func (s *Store) Search(ctx context.Context, ns core.Namespace, query string, limit int) ([]core.MemoryRecord, error) {
	col, err := s.collection(ns, false)
	if err != nil {
		return nil, err
	}
	if col == nil || limit <= 0 {
		return []core.MemoryRecord{}, nil
	}

	// Query rejects nResults greater than the document count.
	n := min(limit, col.Count())
	if n == 0 {
		return []core.MemoryRecord{}, nil
	}
	if query == "" {
		query = " "
	}

	results, err := col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query collection: %v", core.ErrTransientIO, err)
	}

	out := make([]core.MemoryRecord, 0, len(results))
	for _, r := range results {
		out = append(out, core.MemoryRecord{
			Namespace: ns,
			Key:       r.ID,
			Value:     core.MemoryValue{Date: r.Metadata[metaDate], Data: r.Content},
			Score:     float64(r.Similarity),
		})
	}
	return out, nil
}
