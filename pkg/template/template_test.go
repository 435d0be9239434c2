package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

type fakeEnv map[string]interface{}

func (f fakeEnv) StepOutput(stepID string) (interface{}, bool) {
	v, ok := f[stepID]
	return v, ok
}

func TestParse_SoleExpressionRoundTrips(t *testing.T) {
	segs, err := Parse("{{ find.output | summarize(5) }}")
	require.NoError(t, err)
	expr, ok := IsSoleExpression(segs)
	require.True(t, ok)
	assert.Equal(t, "find", expr.Ref.StepID)
	assert.Equal(t, []FilterCall{{Name: "summarize", Args: []string{"5"}}}, expr.Filters)
}

func TestParse_EmbeddedExpressionWithLiteralText(t *testing.T) {
	segs, err := Parse("events for {{ predict_state.output }} person")
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "events for ", segs[0].Literal)
	assert.Equal(t, "predict_state", segs[1].Expr.Ref.StepID)
	assert.Equal(t, " person", segs[2].Literal)
}

func TestParse_UnknownFilterRejected(t *testing.T) {
	_, err := Parse("{{ find.output | shout() }}")
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeTemplateError))
}

func TestParse_UnterminatedExpressionRejected(t *testing.T) {
	_, err := Parse("{{ find.output")
	require.Error(t, err)
}

func TestExpand_SoleExpressionPreservesType(t *testing.T) {
	env := fakeEnv{"find": []interface{}{"a", "b"}}
	segs, err := Parse("{{ find.output }}")
	require.NoError(t, err)
	value, err := Expand(segs, env)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, value)
}

func TestExpand_EmbeddedExpressionStringifies(t *testing.T) {
	env := fakeEnv{"predict_state": "BUSY"}
	segs, err := Parse("events for {{ predict_state }} person")
	require.NoError(t, err)
	value, err := Expand(segs, env)
	require.NoError(t, err)
	assert.Equal(t, "events for BUSY person", value)
}

func TestExpand_UnresolvedReferenceIsFatal(t *testing.T) {
	env := fakeEnv{}
	segs, err := Parse("{{ ghost.output }}")
	require.NoError(t, err)
	_, err = Expand(segs, env)
	require.Error(t, err)
	assert.True(t, pypeserrors.Is(err, pypeserrors.ErrCodeTemplateError))
}

func TestFilterSummarize_TruncatesWithEllipsis(t *testing.T) {
	out, err := applyFilter(FilterCall{Name: "summarize", Args: []string{"5"}}, "a long string")
	require.NoError(t, err)
	assert.Equal(t, "a lo…", out)
}

func TestFilterLength_CountsList(t *testing.T) {
	out, err := applyFilter(FilterCall{Name: "length"}, []interface{}{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy([]interface{}{}))
	assert.False(t, Truthy(float64(0)))
	assert.True(t, Truthy("non-empty"))
	assert.True(t, Truthy(true))
}
