package cluster

import (
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

// pointStrategy clusters plain coordinate vectors with Euclidean distance
type pointStrategy struct {
	calls atomic.Int64
}

func (s *pointStrategy) Distance(a, b []float64) float64 {
	s.calls.Add(1)
	return floats.Distance(a, b, 2)
}

func (s *pointStrategy) Centroid(weights []float64, items [][]float64) []float64 {
	out := make([]float64, len(items[0]))
	var total float64
	for i, item := range items {
		floats.AddScaled(out, weights[i], item)
		total += weights[i]
	}
	floats.Scale(1/total, out)
	return out
}

// twoTriples returns two well separated groups of three points
func twoTriples() [][]float64 {
	return [][]float64{
		{0, 0}, {0, 1}, {1, 0},
		{10, 10}, {10, 11}, {11, 10},
	}
}

func identical(n int) [][]float64 {
	items := make([][]float64, n)
	for i := range items {
		items[i] = []float64{3, 4}
	}
	return items
}

func groupSets(p Partition) []map[int]bool {
	sets := make([]map[int]bool, len(p.Groups))
	for k, g := range p.Groups {
		sets[k] = make(map[int]bool, len(g))
		for _, i := range g {
			sets[k][i] = true
		}
	}
	return sets
}
