// Package report renders grouping results for terminals and scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/eugenenazirov/cohort-balancer/internal/grouping"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

const defaultPrecision = 2

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Faint(true)
)

// Options controls rendering.
type Options struct {
	Format string
	// Members lists every subject under its group.
	Members bool
	// Precision is the number of decimals printed for weights; nil means 2.
	Precision *int
}

// Write renders r to w in the requested format.
func Write(w io.Writer, r grouping.Result, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatTable, "":
		_, err := io.WriteString(w, Render(r, opts))
		return err
	default:
		return fmt.Errorf("unknown report format %q", opts.Format)
	}
}

// Render returns the styled table view of r.
func Render(r grouping.Result, opts Options) string {
	prec := defaultPrecision
	if opts.Precision != nil && *opts.Precision >= 0 {
		prec = *opts.Precision
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', prec, 64) }

	groups := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Group", "Count", "Sum", "Mean", "Deviation", "Std Dev").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, g := range r.Groups {
		groups.Row(g.Label, strconv.Itoa(g.Count), num(g.Sum), num(g.Mean), signed(g.Deviation, prec), num(g.StdDev))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d subjects in %d groups", r.Summary.SubjectCount, r.Summary.GroupCount)))
	b.WriteString("\n")
	b.WriteString(groups.String())
	b.WriteString("\n")

	s := r.Summary
	summary := [][2]string{
		{"total weight", num(s.TotalWeight)},
		{"mean weight", num(s.MeanWeight)},
		{"weight std dev", num(s.WeightStdDev)},
		{"ideal per group", num(s.IdealPerGroup)},
		{"std dev of sums", num(s.StdDev)},
		{"spread", num(s.Spread)},
		{"max |deviation|", num(s.MaxAbsDeviation)},
	}
	for _, line := range summary {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", line[0])))
		b.WriteString(line[1])
		b.WriteString("\n")
	}

	if opts.Members {
		for _, g := range r.Groups {
			b.WriteString("\n")
			b.WriteString(titleStyle.Render(g.Label))
			b.WriteString("\n")
			for _, m := range g.Members {
				fmt.Fprintf(&b, "  %s\t%s\n", m.ID, num(m.Weight))
			}
		}
	}

	return b.String()
}

func signed(v float64, prec int) string {
	if v > 0 {
		return "+" + strconv.FormatFloat(v, 'f', prec, 64)
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
