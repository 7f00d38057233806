package grouping

// Subject is a single animal in a cohort. Subjects are never mutated once read.
type Subject struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// Group is one bucket of a Partition. Members are kept in assignment order and
// Sum is their cumulative weight.
type Group struct {
	Index   int
	Members []Subject
	Sum     float64
}

// Partition is the assignment of every subject into exactly len(Groups) groups.
type Partition struct {
	Groups []Group
}

// SubjectCount returns the number of subjects held across all groups.
func (p Partition) SubjectCount() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Members)
	}
	return n
}

// GroupStats holds the per-group balance figures.
type GroupStats struct {
	Index     int
	Count     int
	Sum       float64
	Mean      float64
	Deviation float64
	// StdDev is the population standard deviation of member weights.
	StdDev float64
}

// Metrics quantifies how well a Partition is balanced.
type Metrics struct {
	Groups          []GroupStats
	SubjectCount    int
	GroupCount      int
	TotalWeight     float64
	MeanWeight      float64
	IdealPerGroup   float64
	StdDev          float64
	MinSum          float64
	MaxSum          float64
	Spread          float64
	MaxAbsDeviation float64
	// WeightStdDev is the population standard deviation of every subject weight.
	WeightStdDev float64
}

// Member is a subject as it appears in a formatted group.
type Member struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// GroupResult is the presentation-ready view of a single group.
type GroupResult struct {
	Index     int      `json:"index"`
	Label     string   `json:"label"`
	Members   []Member `json:"members"`
	Count     int      `json:"count"`
	Sum       float64  `json:"sum"`
	Mean      float64  `json:"mean"`
	Deviation float64  `json:"deviation"`
	StdDev    float64  `json:"stdDev"`
}

// Summary carries the global balance metrics of a Result.
type Summary struct {
	SubjectCount    int     `json:"subjectCount"`
	GroupCount      int     `json:"groupCount"`
	TotalWeight     float64 `json:"totalWeight"`
	MeanWeight      float64 `json:"meanWeight"`
	IdealPerGroup   float64 `json:"idealPerGroup"`
	StdDev          float64 `json:"stdDev"`
	MinSum          float64 `json:"minSum"`
	MaxSum          float64 `json:"maxSum"`
	Spread          float64 `json:"spread"`
	MaxAbsDeviation float64 `json:"maxAbsDeviation"`
	WeightStdDev    float64 `json:"weightStdDev"`
}

// Result is the complete output of one grouping run.
type Result struct {
	Groups  []GroupResult `json:"groups"`
	Summary Summary       `json:"summary"`
}

// Grouper describes the behaviour required from a weight-balancing grouper.
type Grouper interface {
	Group(subjects []Subject, groupCount int) (Result, error)
}
