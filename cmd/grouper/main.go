package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/cohort-balancer/internal/cohort"
	"github.com/eugenenazirov/cohort-balancer/internal/grouping"
	"github.com/eugenenazirov/cohort-balancer/internal/logging"
	"github.com/eugenenazirov/cohort-balancer/internal/report"
)

const (
	exitOK = iota
	exitFailure
	exitInvalidInput
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := kingpin.New("grouper", "Split a cohort CSV into weight-balanced groups")
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)
	groups := app.Flag("groups", "Number of groups to form").Short('g').Required().Int()
	format := app.Flag("format", "Output format").Default(report.FormatTable).Enum(report.FormatTable, report.FormatJSON)
	members := app.Flag("members", "List the subjects of every group").Bool()
	precision := app.Flag("precision", "Decimals printed for weights").Default("2").Int()
	logLevel := app.Flag("log-level", "Log level: debug, info, warn, error").Default("warn").String()
	input := app.Arg("file", "Cohort CSV file, or - for stdin").Default("-").String()

	if _, err := app.Parse(args); err != nil {
		fmt.Fprintf(stderr, "grouper: %v\n", err)
		return exitFailure
	}

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "grouper: %v\n", err)
		return exitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()

	subjects, err := readCohort(*input, stdin)
	if err != nil {
		logger.Error("failed to read cohort", zap.String("file", *input), zap.Error(err))
		fmt.Fprintf(stderr, "grouper: %v\n", err)
		if errors.Is(err, cohort.ErrMalformedSheet) {
			return exitInvalidInput
		}
		return exitFailure
	}

	result, err := grouping.New().Group(subjects, *groups)
	if err != nil {
		var invalid *grouping.InvalidInputError
		if errors.As(err, &invalid) {
			fmt.Fprintln(stderr, "grouper: invalid cohort:")
			for _, v := range invalid.Violations() {
				fmt.Fprintf(stderr, "  - %s\n", v.Error())
			}
			return exitInvalidInput
		}
		fmt.Fprintf(stderr, "grouper: %v\n", err)
		return exitFailure
	}
	logger.Debug("cohort grouped",
		zap.Int("subjects", result.Summary.SubjectCount),
		zap.Int("groups", result.Summary.GroupCount),
		zap.Float64("spread", result.Summary.Spread),
	)

	opts := report.Options{Format: *format, Members: *members, Precision: precision}
	if err := report.Write(stdout, result, opts); err != nil {
		fmt.Fprintf(stderr, "grouper: write report: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func readCohort(path string, stdin io.Reader) ([]grouping.Subject, error) {
	if path == "-" {
		return cohort.Parse(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cohort: %w", err)
	}
	defer f.Close()

	return cohort.Parse(f)
}
