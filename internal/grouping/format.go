package grouping

import (
	"strconv"

	"github.com/ecodeclub/ekit/slice"
)

// Format assembles a Partition and its Metrics into the Result handed to callers.
func Format(p Partition, m Metrics) Result {
	groups := make([]GroupResult, 0, len(p.Groups))
	for i, g := range p.Groups {
		stats := m.Groups[i]
		groups = append(groups, GroupResult{
			Index: g.Index,
			Label: "Group " + strconv.Itoa(g.Index+1),
			Members: slice.Map(g.Members, func(_ int, s Subject) Member {
				return Member{ID: s.ID, Weight: s.Weight}
			}),
			Count:     stats.Count,
			Sum:       stats.Sum,
			Mean:      stats.Mean,
			Deviation: stats.Deviation,
			StdDev:    stats.StdDev,
		})
	}

	return Result{
		Groups: groups,
		Summary: Summary{
			SubjectCount:    m.SubjectCount,
			GroupCount:      m.GroupCount,
			TotalWeight:     m.TotalWeight,
			MeanWeight:      m.MeanWeight,
			IdealPerGroup:   m.IdealPerGroup,
			StdDev:          m.StdDev,
			MinSum:          m.MinSum,
			MaxSum:          m.MaxSum,
			Spread:          m.Spread,
			MaxAbsDeviation: m.MaxAbsDeviation,
			WeightStdDev:    m.WeightStdDev,
		},
	}
}
