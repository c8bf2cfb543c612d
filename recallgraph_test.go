package recallgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/memory"
	"github.com/hupe1980/recallgraph/model"
	"github.com/hupe1980/recallgraph/tool"
)

func TestNew_RequiresModel(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAgent_SubmitTurnWithRecallTool(t *testing.T) {
	mem := memory.NewInMemoryStore()
	ctx := context.Background()
	_, err := memory.NewGateway(mem).Put(ctx, "u1", "The agent used the tool 'weather'.\nThe result was: sunny")
	require.NoError(t, err)

	m := model.NewScriptedModel("scripted").
		CallTools(core.ToolCall{ID: "c1", Name: "recall_memory", Arguments: `{"query":"weather"}`}).
		Reply("It was sunny.")

	agent, err := New(func(o *Options) {
		o.Model = m
		o.MemoryStore = mem
		o.EnableRecallTool = true
	})
	require.NoError(t, err)

	answer, err := agent.SubmitTurn(ctx, "t1", "u1", "What was the weather?")
	require.NoError(t, err)
	assert.Equal(t, "It was sunny.", answer)

	sess, err := agent.Session(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 4)
	results := sess.Turns[2].ToolResults()
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "sunny")

	answer, err = agent.Resume(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "It was sunny.", answer)
}

func TestNew_DuplicateTools(t *testing.T) {
	a := tool.NewFunctionTool("same", "A", nil, nil)
	b := tool.NewFunctionTool("same", "B", nil, nil)
	_, err := New(func(o *Options) {
		o.Model = model.NewScriptedModel("m")
		o.Tools = []tool.Tool{a, b}
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}
