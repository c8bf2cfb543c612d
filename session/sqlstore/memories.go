package sqlstore

import (
	"context"
	"sort"
	"time"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/memory"
)

// candidateWindow bounds how many of a namespace's most recent records are
// scored per search.
const candidateWindow = 1000

// Put inserts a memory record. Re-putting an existing key is a no-op.
func (s *Store) Put(ctx context.Context, ns core.Namespace, key string, value core.MemoryValue) error {
	stmt := `INSERT INTO memories (kind, user_id, mem_key, mem_date, data, created_at)
	         VALUES (?, ?, ?, ?, ?, ?)`
	if s.dialect == MySQL {
		stmt = `INSERT IGNORE INTO memories (kind, user_id, mem_key, mem_date, data, created_at)
		        VALUES (?, ?, ?, ?, ?, ?)`
	} else {
		stmt += ` ON CONFLICT (kind, user_id, mem_key) DO NOTHING`
	}

	unlock := s.lockWrites()
	defer unlock()

	if _, err := s.db.ExecContext(ctx, s.bind(stmt),
		ns.Kind, ns.UserID, key, value.Date, value.Data, time.Now().UnixNano()); err != nil {
		return storeErr("put memory", err)
	}
	return nil
}

// Search keyword-scores the namespace's recent records against query and
// returns the best limit, newest first among equal scores.
func (s *Store) Search(ctx context.Context, ns core.Namespace, query string, limit int) ([]core.MemoryRecord, error) {
	if limit <= 0 {
		return []core.MemoryRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx, s.bind(
		`SELECT mem_key, mem_date, data FROM memories
		 WHERE kind = ? AND user_id = ?
		 ORDER BY id DESC LIMIT ?`),
		ns.Kind, ns.UserID, candidateWindow)
	if err != nil {
		return nil, storeErr("search memories", err)
	}
	defer rows.Close()

	terms := memory.Terms(query)
	out := []core.MemoryRecord{}
	for rows.Next() {
		rec := core.MemoryRecord{Namespace: ns}
		if err := rows.Scan(&rec.Key, &rec.Value.Date, &rec.Value.Data); err != nil {
			return nil, storeErr("scan memory", err)
		}
		rec.Score = memory.KeywordScore(terms, rec.Value.Data)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search memories", err)
	}

	// rows arrive newest first; a stable sort keeps that order within a score
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
