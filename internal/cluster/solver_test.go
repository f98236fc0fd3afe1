package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMembershipRow(t *testing.T) {
	tests := []struct {
		name string
		dist []float64
		m    float64
	}{
		{"moderate", []float64{1, 2, 4}, 2},
		{"coincident point", []float64{0, 3, 5}, 2},
		{"near hard", []float64{0.5, 14, 15}, 1.1},
		{"extreme exponent", []float64{1e-3, 1e12, 1e300}, 1.0001},
		{"very fuzzy", []float64{1, 100}, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]float64, len(tt.dist))
			membershipRow(tt.dist, tt.m, DefaultDistanceFloor, out)

			var sum float64
			for k, u := range out {
				assert.Greater(t, u, 0.0, "membership %d", k)
				assert.False(t, math.IsInf(u, 0) || math.IsNaN(u), "membership %d", k)
				sum += u
			}
			assert.InDelta(t, 1.0, sum, 1e-9)

			// nearest centroid gets the largest membership
			nearest := 0
			for k, d := range tt.dist {
				if d < tt.dist[nearest] {
					nearest = k
				}
			}
			for k, u := range out {
				assert.LessOrEqual(t, u, out[nearest], "membership %d", k)
			}
		})
	}
}

func TestMembershipRowMatchesDirectFormula(t *testing.T) {
	dist := []float64{1.5, 2, 3.25}
	m := 2.5
	out := make([]float64, len(dist))
	membershipRow(dist, m, DefaultDistanceFloor, out)

	p := 2 / (m - 1)
	var inv float64
	raw := make([]float64, len(dist))
	for k, d := range dist {
		raw[k] = math.Pow(d, p)
		inv += 1 / raw[k]
	}
	for k := range dist {
		assert.InDelta(t, 1/(raw[k]*inv), out[k], 1e-12)
	}
}

func TestSolverLossForms(t *testing.T) {
	items := twoTriples()
	centroids := [][]float64{items[0], items[3]}
	fuzz, _ := FixedFuzzifier(len(items), 2)

	sq := newSolver(items, &pointStrategy{}, fuzz, centroids, DefaultDistanceFloor, LossSquared)
	lin := newSolver(items, &pointStrategy{}, fuzz, centroids, DefaultDistanceFloor, LossLinear)

	_, lossSq := sq.step()
	_, lossLin := lin.step()

	assert.Greater(t, lossSq, 0.0)
	assert.Greater(t, lossLin, 0.0)
	assert.NotEqual(t, lossSq, lossLin)
}

func TestSolverLossUsesDistanceFloor(t *testing.T) {
	items := identical(3)
	fuzz, _ := FixedFuzzifier(len(items), 2)

	lin := newSolver(items, &pointStrategy{}, fuzz, [][]float64{{3, 4}}, 0.5, LossLinear)
	movement, loss := lin.step()
	assert.Equal(t, 0.0, movement)
	assert.InDelta(t, 1.5, loss, 1e-12)

	sq := newSolver(items, &pointStrategy{}, fuzz, [][]float64{{3, 4}}, 0.5, LossSquared)
	_, loss = sq.step()
	assert.InDelta(t, 0.75, loss, 1e-12)
}
