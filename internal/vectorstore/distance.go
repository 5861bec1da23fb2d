package vectorstore

import (
	"cmp"
	"math"
	"slices"
)

// Distance computes the distance between a and b under m. Both vectors must
// have the same length.
func Distance(m Metric, a, b []float32) float32 {
	switch m {
	case MetricIP:
		return -dot(a, b)
	case MetricCosine:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot(a, b)/(na*nb)
	default:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	}
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func norm(v []float32) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}

// candidate is a scored row awaiting top-k selection.
type candidate struct {
	seq      int64
	distance float32
	row      *row
}

// topK keeps the k candidates with the smallest (distance, seq).
func topK(cands []candidate, k int) []candidate {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}
