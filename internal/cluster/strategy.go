// Package cluster implements capacity-constrained fuzzy c-means clustering with
// per-item fuzzifiers calibrated from local density.
//
// The engine is agnostic to the item type: dissimilarity and centroid
// computation are delegated to a Strategy. A run is driven one step at a time
// so callers can persist or relay each intermediate partition before the next
// step starts.
package cluster

// Strategy computes dissimilarity between items and weighted centroids.
// Distance may be called concurrently and must not mutate its arguments.
type Strategy[T any] interface {
	// Distance returns a non-negative dissimilarity between a and b
	Distance(a, b T) float64

	// Centroid returns the weighted center of items; weights[i] belongs to items[i].
	// The weights slice is reused by the caller and must not be retained.
	Centroid(weights []float64, items []T) T
}

// Funcs adapts a pair of functions to the Strategy interface
type Funcs[T any] struct {
	DistanceFunc func(a, b T) float64
	CentroidFunc func(weights []float64, items []T) T
}

func (f Funcs[T]) Distance(a, b T) float64 {
	return f.DistanceFunc(a, b)
}

func (f Funcs[T]) Centroid(weights []float64, items []T) T {
	return f.CentroidFunc(weights, items)
}
