// Package grouping splits a cohort of weighed subjects into a fixed number of
// groups whose weight sums are as even as possible. The pipeline is
// Validate -> Assign -> ComputeMetrics -> Format, exposed as a Grouper.
package grouping
