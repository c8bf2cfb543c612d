package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/engine"
	"github.com/hupe1980/recallgraph/internal/testutil"
	"github.com/hupe1980/recallgraph/memory"
	"github.com/hupe1980/recallgraph/model"
	"github.com/hupe1980/recallgraph/session"
	"github.com/hupe1980/recallgraph/tool"
)

var _ TurnEngine = (*engine.Engine)(nil)

type fakeEngine struct {
	threadID, userID, text string
	answer                 string
	sess                   *core.Session
	err                    error
}

func (f *fakeEngine) SubmitTurn(_ context.Context, threadID, userID, text string) (string, error) {
	f.threadID, f.userID, f.text = threadID, userID, text
	return f.answer, f.err
}

func (f *fakeEngine) Session(_ context.Context, threadID string) (*core.Session, error) {
	f.threadID = threadID
	return f.sess, f.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	rec := do(t, NewHandler(&fakeEngine{}).Routes(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestPostTurn(t *testing.T) {
	eng := &fakeEngine{answer: "Paris."}
	rec := do(t, NewHandler(eng).Routes(), http.MethodPost, "/v1/threads/t1/turns", `{"user_id":"u1","text":"capital of France?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Paris.", decode(t, rec)["text"])
	assert.Equal(t, "t1", eng.threadID)
	assert.Equal(t, "u1", eng.userID)
	assert.Equal(t, "capital of France?", eng.text)
}

func TestPostTurn_BadBody(t *testing.T) {
	rec := do(t, NewHandler(&fakeEngine{}).Routes(), http.MethodPost, "/v1/threads/t1/turns", `{"user_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode(t, rec)["error"])
}

func TestPostTurn_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: empty message", core.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("save checkpoint: %w", core.ErrTransientIO), http.StatusServiceUnavailable},
		{fmt.Errorf("generate response: %w", core.ErrModel), http.StatusServiceUnavailable},
		{core.ErrMaxModelCalls, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: unknown stage", core.ErrConfiguration), http.StatusInternalServerError},
		{core.ErrCheckpointConflict, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := do(t, NewHandler(&fakeEngine{err: c.err}).Routes(), http.MethodPost, "/v1/threads/t1/turns", `{"user_id":"u1","text":"x"}`)
		if rec.Code != c.want {
			t.Fatalf("%v: status = %d, want %d", c.err, rec.Code, c.want)
		}
	}

	rec := do(t, NewHandler(&fakeEngine{err: fmt.Errorf("generate response: %w: secret detail", core.ErrModel)}).Routes(),
		http.MethodPost, "/v1/threads/t1/turns", `{"user_id":"u1","text":"x"}`)
	assert.Equal(t, "Service Unavailable", decode(t, rec)["error"], "internal details are not leaked")
}

func TestGetThread(t *testing.T) {
	sess := testutil.NewSessionBuilder("t1", "u1").Summary("earlier").Turns(testutil.Conversation(2)...).Version(3).Build()
	rec := do(t, NewHandler(&fakeEngine{sess: sess}).Routes(), http.MethodGet, "/v1/threads/t1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var view threadView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "t1", view.ThreadID)
	assert.Equal(t, core.StageDone, view.Stage)
	assert.Equal(t, int64(3), view.Version)
	assert.Equal(t, "earlier", view.Summary)
	require.Len(t, view.Turns, 2)
	assert.Equal(t, "assistant 2", view.Turns[1].Text())
}

func TestGetThread_NotFound(t *testing.T) {
	rec := do(t, NewHandler(&fakeEngine{err: core.ErrCheckpointNotFound}).Routes(), http.MethodGet, "/v1/threads/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_WithEngine(t *testing.T) {
	reg, err := tool.NewRegistry()
	require.NoError(t, err)
	m := model.NewScriptedModel("scripted").Reply("hi!")
	eng, err := engine.New(func(o *engine.Options) {
		o.Model = m
		o.Tools = reg
		o.Checkpoints = session.NewInMemoryStore()
		o.Memories = memory.NewInMemoryStore()
	})
	require.NoError(t, err)
	h := NewHandler(eng).Routes()

	rec := do(t, h, http.MethodPost, "/v1/threads/t9/turns", `{"user_id":"u9","text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi!", decode(t, rec)["text"])

	rec = do(t, h, http.MethodPost, "/v1/threads/t9/turns", `{"user_id":"","text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/threads/t9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "done", body["stage"])
	assert.Len(t, body["turns"], 2)
}
