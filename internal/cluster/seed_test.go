package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	t.Run("Farthest_From_Previous", func(t *testing.T) {
		items := [][]float64{{0}, {1}, {2}, {10}}
		for seed := int64(0); seed < 20; seed++ {
			got, err := Seed(items, &pointStrategy{}, 2, rand.New(rand.NewSource(seed)))
			require.NoError(t, err)
			require.Len(t, got, 2)
			if got[0] == 3 {
				assert.Equal(t, 0, got[1])
			} else {
				assert.Equal(t, 3, got[1])
			}
		}
	})

	t.Run("Deterministic_For_Seed", func(t *testing.T) {
		items := twoTriples()
		a, err := Seed(items, &pointStrategy{}, 3, rand.New(rand.NewSource(42)))
		require.NoError(t, err)
		b, err := Seed(items, &pointStrategy{}, 3, rand.New(rand.NewSource(42)))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Distinct_Indices", func(t *testing.T) {
		items := identical(6)
		got, err := Seed(items, &pointStrategy{}, 6, rand.New(rand.NewSource(7)))
		require.NoError(t, err)

		seen := make(map[int]bool)
		for _, idx := range got {
			assert.False(t, seen[idx], "index %d chosen twice", idx)
			seen[idx] = true
		}
		assert.Len(t, seen, 6)
	})

	t.Run("Ties_Prefer_Lowest_Index", func(t *testing.T) {
		items := identical(4)
		got, err := Seed(items, &pointStrategy{}, 3, rand.New(rand.NewSource(1)))
		require.NoError(t, err)

		var rest []int
		for i := 0; i < 4; i++ {
			if i != got[0] {
				rest = append(rest, i)
			}
		}
		assert.Equal(t, rest[:2], got[1:])
	})

	t.Run("Too_Many_Clusters", func(t *testing.T) {
		_, err := Seed(twoTriples(), &pointStrategy{}, 7, rand.New(rand.NewSource(1)))
		assert.True(t, IsConfiguration(err))
	})
}
