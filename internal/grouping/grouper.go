package grouping

import (
	"fmt"
	"math"
)

// conservationTolerance bounds the relative drift allowed between the input
// total and the sum of group sums, which are accumulated in different orders.
const conservationTolerance = 1e-9

type greedyGrouper struct{}

// New creates a Grouper based on greedy longest-processing-time assignment.
func New() Grouper {
	return &greedyGrouper{}
}

func (g *greedyGrouper) Group(subjects []Subject, groupCount int) (Result, error) {
	if err := Validate(subjects, groupCount); err != nil {
		return Result{}, err
	}

	partition := Assign(subjects, groupCount)
	mustHoldEverySubject(subjects, partition)

	return Format(partition, ComputeMetrics(partition)), nil
}

// mustHoldEverySubject panics when the partition lost, duplicated or re-weighed a
// subject. Such a breach is a partitioner defect, never a caller error.
func mustHoldEverySubject(subjects []Subject, p Partition) {
	if got := p.SubjectCount(); got != len(subjects) {
		panic(fmt.Sprintf("grouping: partition holds %d subjects, want %d", got, len(subjects)))
	}

	placed := make(map[string]struct{}, len(subjects))
	var groupTotal float64
	for _, g := range p.Groups {
		for _, s := range g.Members {
			placed[s.ID] = struct{}{}
		}
		groupTotal += g.Sum
	}
	var inputTotal float64
	for _, s := range subjects {
		if _, ok := placed[s.ID]; !ok {
			panic(fmt.Sprintf("grouping: subject %q missing from partition", s.ID))
		}
		inputTotal += s.Weight
	}
	if !(math.Abs(groupTotal-inputTotal) <= conservationTolerance*inputTotal) {
		panic(fmt.Sprintf("grouping: group sums total %g, input total %g", groupTotal, inputTotal))
	}
}
