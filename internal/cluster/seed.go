package cluster

import (
	"math/rand"
)

// Seed picks k distinct item indices as initial centroids using greedy
// farthest-first traversal: the first index is drawn uniformly from all items,
// every following one is the unchosen item farthest from the previous pick.
// Ties go to the lowest index, so the result depends only on rng and items.
func Seed[T any](items []T, s Strategy[T], k int, rng *rand.Rand) ([]int, error) {
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

	chosen := make([]bool, n)
	seeds := make([]int, 0, k)

	last := rng.Intn(n)
	chosen[last] = true
	seeds = append(seeds, last)

	for len(seeds) < k {
		next, best := -1, 0.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			if d := s.Distance(items[last], items[i]); next < 0 || d > best {
				next, best = i, d
			}
		}
		chosen[next] = true
		seeds = append(seeds, next)
		last = next
	}
	return seeds, nil
}
