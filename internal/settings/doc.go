// Package settings holds the mutable service defaults applied to grouping
// requests. Nothing about individual grouping runs is stored.
package settings
