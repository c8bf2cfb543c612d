package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/recallgraph/core"
)

// Save writes sess if its version directly follows the stored one.
func (s *Store) Save(ctx context.Context, sess *core.Session) error {
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	unlock := s.lockWrites()
	defer unlock()

	now := time.Now().UnixNano()

	if sess.Version == 1 {
		_, err := s.db.ExecContext(ctx, s.bind(
			`INSERT INTO checkpoints (thread_id, user_id, version, stage, state, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			sess.ThreadID, sess.UserID, sess.Version, string(sess.Stage), string(state), now)
		if err == nil {
			return nil
		}
		if current, lookupErr := s.version(ctx, sess.ThreadID); lookupErr == nil && current > 0 {
			return conflict(sess, current)
		}
		return storeErr("insert checkpoint", err)
	}

	res, err := s.db.ExecContext(ctx, s.bind(
		`UPDATE checkpoints SET user_id = ?, version = ?, stage = ?, state = ?, updated_at = ?
		 WHERE thread_id = ? AND version = ?`),
		sess.UserID, sess.Version, string(sess.Stage), string(state), now,
		sess.ThreadID, sess.Version-1)
	if err != nil {
		return storeErr("update checkpoint", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update checkpoint", err)
	}
	if n == 0 {
		current, err := s.version(ctx, sess.ThreadID)
		if err != nil {
			return err
		}
		return conflict(sess, current)
	}
	return nil
}

// Load returns the latest snapshot of threadID.
func (s *Store) Load(ctx context.Context, threadID string) (*core.Session, error) {
	var state string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT state FROM checkpoints WHERE thread_id = ?`), threadID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrCheckpointNotFound, threadID)
	}
	if err != nil {
		return nil, storeErr("load checkpoint", err)
	}

	var sess core.Session
	if err := json.Unmarshal([]byte(state), &sess); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &sess, nil
}

// version returns the stored version, 0 when absent.
func (s *Store) version(ctx context.Context, threadID string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT version FROM checkpoints WHERE thread_id = ?`), threadID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr("read checkpoint version", err)
	}
	return v, nil
}

func conflict(sess *core.Session, current int64) error {
	return fmt.Errorf("%w: thread %s at version %d, got %d",
		core.ErrCheckpointConflict, sess.ThreadID, current, sess.Version)
}

func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrTransientIO, op, err)
}
