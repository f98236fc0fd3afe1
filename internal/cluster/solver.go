package cluster

import (
	"math"
)

// solver holds the mutable state of the membership/centroid iteration
type solver[T any] struct {
	items      []T
	strategy   Strategy[T]
	fuzzifiers []float64
	floor      float64
	lossForm   LossForm

	centroids  []T
	membership [][]float64
	// dist[i][k] is the distance from item i to centroid k; refreshed after every
	// centroid update and reused by the next membership update
	dist    [][]float64
	weights []float64
}

func newSolver[T any](items []T, s Strategy[T], fuzzifiers []float64, centroids []T, floor float64, loss LossForm) *solver[T] {
	n, k := len(items), len(centroids)
	sv := &solver[T]{
		items:      items,
		strategy:   s,
		fuzzifiers: fuzzifiers,
		floor:      floor,
		lossForm:   loss,
		centroids:  centroids,
		membership: newMatrix(n, k),
		dist:       newMatrix(n, k),
		weights:    make([]float64, n),
	}
	sv.refreshDistances()
	return sv
}

func newMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}

func (sv *solver[T]) refreshDistances() {
	for i, item := range sv.items {
		for k, c := range sv.centroids {
			sv.dist[i][k] = sv.strategy.Distance(item, c)
		}
	}
}

// step performs one membership update, centroid update and loss evaluation.
// It returns the largest centroid movement and the loss.
func (sv *solver[T]) step() (movement, loss float64) {
	sv.updateMembership()
	movement = sv.updateCentroids()
	sv.refreshDistances()
	return movement, sv.loss()
}

func (sv *solver[T]) updateMembership() {
	for i := range sv.items {
		membershipRow(sv.dist[i], sv.fuzzifiers[i], sv.floor, sv.membership[i])
	}
}

// membershipRow computes u_k = 1 / sum_j (d_k/d_j)^p with p = 2/(m-1).
// The ratio form is evaluated in log space, u = softmax(-p ln d), so large
// exponents do not overflow. Results are clamped to stay strictly positive.
func membershipRow(dist []float64, m, floor float64, out []float64) {
	p := 2 / (m - 1)

	maxA := math.Inf(-1)
	for k, d := range dist {
		a := -p * math.Log(math.Max(d, floor))
		out[k] = a
		if a > maxA {
			maxA = a
		}
	}

	if math.IsInf(maxA, -1) || math.IsNaN(maxA) {
		uniform := 1 / float64(len(out))
		for k := range out {
			out[k] = uniform
		}
		return
	}

	var sum float64
	for k, a := range out {
		e := math.Exp(a - maxA)
		out[k] = e
		sum += e
	}
	for k := range out {
		u := out[k] / sum
		if u < math.SmallestNonzeroFloat64 {
			u = math.SmallestNonzeroFloat64
		}
		out[k] = u
	}
}

func (sv *solver[T]) updateCentroids() float64 {
	var movement float64
	next := make([]T, len(sv.centroids))
	for k := range sv.centroids {
		for i := range sv.items {
			sv.weights[i] = math.Pow(sv.membership[i][k], sv.fuzzifiers[i])
		}
		next[k] = sv.strategy.Centroid(sv.weights, sv.items)
		if d := sv.strategy.Distance(sv.centroids[k], next[k]); d > movement || math.IsNaN(d) {
			movement = d
		}
	}
	sv.centroids = next
	return movement
}

// loss evaluates the objective on floored distances, like the membership update
func (sv *solver[T]) loss() float64 {
	var total float64
	for i := range sv.items {
		m := sv.fuzzifiers[i]
		for k, d := range sv.dist[i] {
			d = math.Max(d, sv.floor)
			w := math.Pow(sv.membership[i][k], m)
			if sv.lossForm == LossSquared {
				total += w * d * d
			} else {
				total += w * d
			}
		}
	}
	return total
}

func (sv *solver[T]) membershipCopy() [][]float64 {
	out := newMatrix(len(sv.membership), len(sv.centroids))
	for i, row := range sv.membership {
		copy(out[i], row)
	}
	return out
}
