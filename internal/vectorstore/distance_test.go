package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name   string
		metric Metric
		a, b   []float32
		want   float32
	}{
		{"l2", MetricL2, []float32{0, 0}, []float32{3, 4}, 5},
		{"l2 identical", MetricL2, []float32{1, 2}, []float32{1, 2}, 0},
		{"ip", MetricIP, []float32{1, 2}, []float32{3, 4}, -11},
		{"cosine parallel", MetricCosine, []float32{1, 1}, []float32{2, 2}, 0},
		{"cosine orthogonal", MetricCosine, []float32{1, 0}, []float32{0, 1}, 1},
		{"cosine opposite", MetricCosine, []float32{1, 0}, []float32{-1, 0}, 2},
		{"cosine zero vector", MetricCosine, []float32{0, 0}, []float32{0, 1}, 1},
		{"unknown falls back to l2", "", []float32{0}, []float32{2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.metric, tt.a, tt.b), 1e-6)
		})
	}
}

func TestTopK_TiesKeepInsertionOrder(t *testing.T) {
	cands := []candidate{
		{seq: 4, distance: 1},
		{seq: 2, distance: 0.5},
		{seq: 1, distance: 1},
		{seq: 3, distance: 1},
		{seq: 0, distance: 2},
	}

	top := topK(cands, 3)
	seqs := make([]int64, len(top))
	for i, c := range top {
		seqs[i] = c.seq
	}
	assert.Equal(t, []int64{2, 1, 3}, seqs)

	assert.Len(t, topK([]candidate{{seq: 1}}, 5), 1)
	assert.Empty(t, topK(nil, 5))
}

func TestPlaceholderEmbedding(t *testing.T) {
	assert.Equal(t, []float32{1, 0, 0}, placeholderEmbedding([]float32{0, 0, 0}))
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, placeholderEmbedding([]float32{3, 4}), 1e-6)
	assert.Empty(t, placeholderEmbedding(nil))
}
