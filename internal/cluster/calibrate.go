package cluster

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Calibrate derives one fuzzifier per item from local density. Items in dense
// neighborhoods get fuzzifiers near p.Lower, isolated items near p.Upper.
//
// The density score of an item is the sum of its floor(N/k) smallest distances
// to the other items. When every score is equal the calibration is degenerate
// and all items receive p.Lower.
func Calibrate[T any](ctx context.Context, items []T, s Strategy[T], k int, p CalibrationParams) ([]float64, error) {
	n := len(items)
	if n == 0 {
		return nil, configErrorf("items", "dataset is empty")
	}
	if k <= 0 {
		return nil, configErrorf("clusters", "must be positive, got %d", k)
	}
	if k > n {
		return nil, configErrorf("clusters", "%d exceeds item count %d", k, n)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	dist, err := pairwiseDistances(ctx, items, s, p.Parallelism)
	if err != nil {
		return nil, err
	}

	deltas := densityScores(dist, n/k)

	lo, hi := deltas[0], deltas[0]
	for _, d := range deltas[1:] {
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}

	fuzzifiers := make([]float64, n)
	spread := hi - lo
	if spread == 0 || math.IsNaN(spread) || math.IsInf(spread, 0) {
		for i := range fuzzifiers {
			fuzzifiers[i] = p.Lower
		}
		return fuzzifiers, nil
	}

	for i, d := range deltas {
		fuzzifiers[i] = p.Lower + (p.Upper-p.Lower)*math.Pow((d-lo)/spread, p.Alpha)
	}
	return fuzzifiers, nil
}

// FixedFuzzifier returns a vector holding m for each of n items
func FixedFuzzifier(n int, m float64) ([]float64, error) {
	if err := validateFuzzifier("fuzzifier", m); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = m
	}
	return out, nil
}

// pairwiseDistances fills a symmetric matrix, computing each pair once.
// Row i owns cells [i][j] and [j][i] for j > i, so rows never share writes.
func pairwiseDistances[T any](ctx context.Context, items []T, s Strategy[T], parallelism int) ([][]float64, error) {
	n := len(items)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}

	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < n; j++ {
				d := s.Distance(items[i], items[j])
				dist[i][j] = d
				dist[j][i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dist, nil
}

// densityScores sums the c smallest off-diagonal distances of every row
func densityScores(dist [][]float64, c int) []float64 {
	n := len(dist)
	if c > n-1 {
		c = n - 1
	}

	deltas := make([]float64, n)
	row := make([]float64, 0, n)
	for i := range dist {
		row = row[:0]
		for j, d := range dist[i] {
			if j != i {
				row = append(row, d)
			}
		}
		sort.Float64s(row)

		var sum float64
		for _, d := range row[:c] {
			sum += d
		}
		deltas[i] = sum
	}
	return deltas
}
