package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

func mustParse(t *testing.T, expr string) filter.Node {
	t.Helper()
	node, err := filter.Parse(expr)
	require.NoError(t, err)
	return node
}

func TestTranslateFilter_Native(t *testing.T) {
	schema := testSchema(4, MetricL2)

	tests := []string{
		"views > 10",
		"views == 3",
		"views != 3",
		"score <= 0.5 && score >= 0.1",
		"id == 'doc-1'",
		"id != 'doc-1'",
		"live == true",
		"live != false",
		"id in ['a', 'b']",
		"views in [1, 2, 3]",
		"not (views < 5) || id == 'x'",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			f, ok := translateFilter(mustParse(t, expr), schema)
			require.True(t, ok)
			require.NotNil(t, f)
			assert.Len(t, f.GetMust(), 1)
		})
	}
}

func TestTranslateFilter_Fallback(t *testing.T) {
	schema := testSchema(4, MetricL2)

	tests := []string{
		"id =~ '^doc'",
		"id !~ '^doc'",
		"id like 'doc-%'",
		"id > 'doc-5'",
		"id < '2024-01-01'",
		"views > 3 && id =~ 'x'",
	}
	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, ok := translateFilter(mustParse(t, expr), schema)
			assert.False(t, ok)
		})
	}
}

func TestTranslateFilter_Empty(t *testing.T) {
	f, ok := translateFilter(nil, testSchema(4, MetricL2))
	assert.True(t, ok)
	assert.Nil(t, f)
}

func TestTranslateCompare_Shapes(t *testing.T) {
	schema := testSchema(4, MetricL2)

	cond, ok := translateCompare(&filter.Compare{Field: "views", Op: filter.OpGte, Value: 10.0}, schema)
	require.True(t, ok)
	r := cond.GetField().GetRange()
	require.NotNil(t, r)
	assert.Equal(t, 10.0, r.GetGte())
	assert.Nil(t, r.Lt)

	cond, ok = translateCompare(&filter.Compare{Field: "views", Op: filter.OpNe, Value: 3.0}, schema)
	require.True(t, ok)
	inner := cond.GetFilter().GetMustNot()
	require.Len(t, inner, 1)
	assert.Equal(t, 3.0, inner[0].GetField().GetRange().GetLte())

	cond, ok = translateCompare(&filter.Compare{Field: "id", Op: filter.OpEq, Value: "abc"}, schema)
	require.True(t, ok)
	assert.Equal(t, "abc", cond.GetField().GetMatch().GetKeyword())

	cond, ok = translateCompare(&filter.Compare{Field: "live", Op: filter.OpNe, Value: true}, schema)
	require.True(t, ok)
	assert.False(t, cond.GetField().GetMatch().GetBoolean())

	_, ok = translateCompare(&filter.Compare{Field: "missing", Op: filter.OpEq, Value: 1.0}, schema)
	assert.False(t, ok)
}

func TestWithoutMeta(t *testing.T) {
	f := withoutMeta(nil)
	require.Len(t, f.GetMustNot(), 1)
	assert.NotNil(t, f.GetMustNot()[0].GetHasId())

	user := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatchKeyword("id", "x")}}
	f = withoutMeta(user)
	assert.Len(t, f.GetMust(), 1)
	assert.Len(t, f.GetMustNot(), 1)
}
