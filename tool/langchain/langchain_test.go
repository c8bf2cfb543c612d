package langchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/tool"
)

var _ tool.Tool = (*Tool)(nil)

type echoTool struct {
	got string
	err error
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echoes its input" }
func (e *echoTool) Call(_ context.Context, input string) (string, error) {
	e.got = input
	return "echo: " + input, e.err
}

func toolCtx() *core.ToolContext {
	return core.NewToolContext(context.Background(), "t", "u", "c", logging.NoOpLogger{})
}

func TestWrap(t *testing.T) {
	inner := &echoTool{}
	w := Wrap(inner)

	assert.Equal(t, "echo", w.Name())
	assert.Equal(t, []string{"input"}, w.Parameters()["required"])

	out, err := w.Call(toolCtx(), map[string]any{"input": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)

	_, err = w.Call(toolCtx(), map[string]any{"q": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"x"}`, inner.got)

	inner.err = errors.New("nope")
	_, err = w.Call(toolCtx(), map[string]any{"input": "x"})
	assert.ErrorIs(t, err, core.ErrToolExecution)
}

func TestCalculator(t *testing.T) {
	calc := Calculator()
	assert.Equal(t, "calculator", calc.Name())

	out, err := calc.Call(toolCtx(), map[string]any{"input": "2+3"})
	require.NoError(t, err)
	assert.Equal(t, "5", out)
}
