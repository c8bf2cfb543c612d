package session

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/recallgraph/core"
)

// Interface compliance (compile-time assertion)
var _ core.CheckpointStore = (*InMemoryStore)(nil)

func TestInMemoryStore_LoadMissing(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Load(context.Background(), "nope")
	if !errors.Is(err, core.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestInMemoryStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	sess := core.NewSession("t1", "u1")
	sess.AppendTurn(core.NewUserTurn("hi"))
	sess.Summary = "earlier"
	sess.Stage = core.StageChatbot
	sess.Version = 1
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// mutating the caller's copy must not leak into the store
	sess.AppendTurn(core.NewAssistantTurn("leak"))

	got, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got.Turns) != 1 || got.Summary != "earlier" || got.Stage != core.StageChatbot || got.Version != 1 {
		t.Fatalf("unexpected snapshot: %#v", got)
	}

	got.Turns[0] = core.NewUserTurn("changed")
	again, _ := store.Load(ctx, "t1")
	if again.Turns[0].Text() != "hi" {
		t.Fatalf("expected clone isolation, got %q", again.Turns[0].Text())
	}
	if store.Threads() != 1 {
		t.Fatalf("expected 1 thread, got %d", store.Threads())
	}
}

func TestInMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	sess := core.NewSession("t1", "u1")
	sess.Version = 2
	if err := store.Save(ctx, sess); !errors.Is(err, core.ErrCheckpointConflict) {
		t.Fatalf("expected conflict for first save at version 2, got %v", err)
	}

	sess.Version = 1
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(ctx, sess); !errors.Is(err, core.ErrCheckpointConflict) {
		t.Fatalf("expected conflict for stale save, got %v", err)
	}
	sess.Version = 2
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestInMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewInMemoryStore()
	sess := core.NewSession("t", "u")
	sess.Version = 1
	if err := store.Save(ctx, sess); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
