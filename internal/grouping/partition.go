package grouping

import (
	"container/heap"
	"sort"
)

// Assign distributes subjects over groupCount groups with longest-processing-time
// greedy assignment: heaviest subject first, each to the currently lightest group.
// Equal weights keep their input order and equal group sums resolve to the lowest
// group index, so the result is deterministic.
//
// Assign expects input that passed Validate.
func Assign(subjects []Subject, groupCount int) Partition {
	order := make([]int, len(subjects))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return subjects[order[a]].Weight > subjects[order[b]].Weight
	})

	groups := make([]Group, groupCount)
	buckets := make(lightestFirst, groupCount)
	for i := range groups {
		groups[i].Index = i
		buckets[i] = bucket{index: i}
	}
	heap.Init(&buckets)

	for _, idx := range order {
		s := subjects[idx]
		target := &groups[buckets[0].index]
		target.Members = append(target.Members, s)
		target.Sum += s.Weight

		buckets[0].sum = target.Sum
		heap.Fix(&buckets, 0)
	}

	return Partition{Groups: groups}
}

type bucket struct {
	index int
	sum   float64
}

// lightestFirst is a min-heap ordered by group sum, then group index.
type lightestFirst []bucket

func (h lightestFirst) Len() int { return len(h) }

func (h lightestFirst) Less(i, j int) bool {
	if h[i].sum != h[j].sum {
		return h[i].sum < h[j].sum
	}
	return h[i].index < h[j].index
}

func (h lightestFirst) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *lightestFirst) Push(x any) { *h = append(*h, x.(bucket)) }

func (h *lightestFirst) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
