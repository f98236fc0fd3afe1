package cluster

import (
	"sort"
)

// Partition is a hard assignment of item indices to groups. Groups[k] holds
// the items placed in centroid k's group, in the order they were placed.
type Partition struct {
	Groups     [][]int
	Unassigned []int
}

// Assigned returns the number of items placed in some group
func (p Partition) Assigned() int {
	total := 0
	for _, g := range p.Groups {
		total += len(g)
	}
	return total
}

// Labels returns the group of every item, or -1 for unassigned items
func (p Partition) Labels(n int) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for k, g := range p.Groups {
		for _, i := range g {
			labels[i] = k
		}
	}
	return labels
}

// Assign converts soft memberships into groups of at most capacity items.
// Items are processed in index order; each goes to the centroid with the
// highest membership whose group still has room, ties going to the lower
// centroid index. This is greedy: earlier items are never moved to make room
// for later ones.
//
// Items that fit nowhere are reported in Partition.Unassigned together with an
// *AssignmentOverflowError. With clusters*capacity >= items that never happens.
func Assign(membership [][]float64, clusters, capacity int) (Partition, error) {
	if clusters <= 0 {
		return Partition{}, configErrorf("clusters", "must be positive, got %d", clusters)
	}
	if capacity <= 0 {
		return Partition{}, configErrorf("capacity", "must be positive, got %d", capacity)
	}

	p := Partition{Groups: make([][]int, clusters)}
	for k := range p.Groups {
		p.Groups[k] = make([]int, 0, capacity)
	}

	order := make([]int, clusters)
	for i, row := range membership {
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, b int) bool {
			return row[order[a]] > row[order[b]]
		})

		placed := false
		for _, k := range order {
			if len(p.Groups[k]) < capacity {
				p.Groups[k] = append(p.Groups[k], i)
				placed = true
				break
			}
		}
		if !placed {
			p.Unassigned = append(p.Unassigned, i)
		}
	}

	if len(p.Unassigned) > 0 {
		return p, &AssignmentOverflowError{
			Unassigned: p.Unassigned,
			Capacity:   capacity,
			Clusters:   clusters,
			Items:      len(membership),
		}
	}
	return p, nil
}
