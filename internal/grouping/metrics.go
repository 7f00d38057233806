package grouping

import "math"

// ComputeMetrics derives per-group and global balance figures from p.
// The total weight is the sum of the group sums; StdDev is the population
// standard deviation of the group sums around the ideal per-group weight.
// WeightStdDev and the per-group StdDev measure the spread of individual
// weights across the cohort and within each group.
func ComputeMetrics(p Partition) Metrics {
	k := len(p.Groups)
	m := Metrics{
		Groups:     make([]GroupStats, 0, k),
		GroupCount: k,
	}
	if k == 0 {
		return m
	}

	for _, g := range p.Groups {
		m.SubjectCount += len(g.Members)
		m.TotalWeight += g.Sum
	}
	m.IdealPerGroup = m.TotalWeight / float64(k)
	if m.SubjectCount > 0 {
		m.MeanWeight = m.TotalWeight / float64(m.SubjectCount)
	}

	m.MinSum, m.MaxSum = p.Groups[0].Sum, p.Groups[0].Sum
	var squares float64
	for _, g := range p.Groups {
		stats := GroupStats{
			Index:     g.Index,
			Count:     len(g.Members),
			Sum:       g.Sum,
			Deviation: g.Sum - m.IdealPerGroup,
		}
		if stats.Count > 0 {
			stats.Mean = g.Sum / float64(stats.Count)
			stats.StdDev = weightStdDev(g.Members, stats.Mean)
		}
		m.Groups = append(m.Groups, stats)

		m.MinSum = math.Min(m.MinSum, g.Sum)
		m.MaxSum = math.Max(m.MaxSum, g.Sum)
		m.MaxAbsDeviation = math.Max(m.MaxAbsDeviation, math.Abs(stats.Deviation))
		squares += stats.Deviation * stats.Deviation
	}
	m.StdDev = math.Sqrt(squares / float64(k))
	m.Spread = m.MaxSum - m.MinSum

	if m.SubjectCount > 0 {
		var cohortSquares float64
		for _, g := range p.Groups {
			for _, s := range g.Members {
				d := s.Weight - m.MeanWeight
				cohortSquares += d * d
			}
		}
		m.WeightStdDev = math.Sqrt(cohortSquares / float64(m.SubjectCount))
	}

	return m
}

func weightStdDev(members []Subject, mean float64) float64 {
	var squares float64
	for _, s := range members {
		d := s.Weight - mean
		squares += d * d
	}
	return math.Sqrt(squares / float64(len(members)))
}
