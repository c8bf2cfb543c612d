package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/recallgraph/core"
)

type storedMemory struct {
	key   string
	value core.MemoryValue
	seq   int
}

// InMemoryStore is a process local MemoryStore.
//
// Search scores a record by the fraction of query terms that occur in its
// data (case insensitive). Ties, including all-zero scores, go to the most
// recently written record, so a search always returns the newest records
// when nothing matches. Suitable for tests and demos only.
type InMemoryStore struct {
	mu      sync.RWMutex
	seq     int
	storage map[core.Namespace][]storedMemory
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{storage: make(map[core.Namespace][]storedMemory)}
}

// Put appends a record. Writing an existing key replaces its value in place.
func (m *InMemoryStore) Put(ctx context.Context, ns core.Namespace, key string, value core.MemoryValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	records := m.storage[ns]
	for i := range records {
		if records[i].key == key {
			records[i].value = value
			return nil
		}
	}
	m.storage[ns] = append(records, storedMemory{key: key, value: value, seq: m.seq})
	return nil
}

// Search ranks the namespace's records against query.
func (m *InMemoryStore) Search(ctx context.Context, ns core.Namespace, query string, limit int) ([]core.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.storage[ns]
	if len(records) == 0 || limit <= 0 {
		return []core.MemoryRecord{}, nil
	}

	terms := Terms(query)
	out := make([]core.MemoryRecord, 0, len(records))
	seqs := make(map[string]int, len(records))
	for _, r := range records {
		out = append(out, core.MemoryRecord{
			Namespace: ns,
			Key:       r.key,
			Value:     r.value,
			Score:     KeywordScore(terms, r.value.Data),
		})
		seqs[r.key] = r.seq
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return seqs[out[i].Key] > seqs[out[j].Key]
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Terms splits text into lower-cased alphanumeric terms.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// KeywordScore is the fraction of terms contained in data.
func KeywordScore(terms []string, data string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(data)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
