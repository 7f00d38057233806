// Package cohort reads subject lists from tabular (CSV) input.
package cohort

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/eugenenazirov/cohort-balancer/internal/grouping"
)

// ErrMalformedSheet is returned when the input cannot be read as a cohort table.
var ErrMalformedSheet = errors.New("malformed cohort sheet")

var (
	weightHeaders = []string{"weight", "weight_g", "body_weight", "bw"}
	idHeaders     = []string{"id", "subject", "animal", "tag"}
)

// Parse reads a CSV table with a header row and returns its subjects in row order.
// The weight column is required; when no identifier column exists subjects are
// named S1, S2, ... after their data row. Weight positivity and identifier
// uniqueness are left to grouping.Validate.
func Parse(r io.Reader) ([]grouping.Subject, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(ErrMalformedSheet, "missing header row")
	}
	if err != nil {
		return nil, readError(err, "read header")
	}

	weightCol := findColumn(header, weightHeaders)
	if weightCol < 0 {
		return nil, errors.Wrapf(ErrMalformedSheet, "no weight column in header %q", strings.Join(header, ","))
	}
	idCol := findColumn(header, idHeaders)

	var subjects []grouping.Subject
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, readError(err, "row "+strconv.Itoa(row))
		}
		if blank(record) {
			continue
		}
		if weightCol >= len(record) {
			return nil, errors.Wrapf(ErrMalformedSheet, "row %d: missing weight", row)
		}

		raw := strings.TrimSpace(record[weightCol])
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedSheet, "row %d: weight %q is not a number", row, raw)
		}

		id := "S" + strconv.Itoa(row)
		if idCol >= 0 && idCol < len(record) {
			if v := strings.TrimSpace(record[idCol]); v != "" {
				id = v
			}
		}
		subjects = append(subjects, grouping.Subject{ID: id, Weight: weight})
	}

	return subjects, nil
}

func findColumn(header, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// readError reports CSV syntax errors as ErrMalformedSheet and keeps failures of
// the underlying reader unwrappable by callers.
func readError(err error, context string) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return errors.Wrapf(ErrMalformedSheet, "%s: %v", context, err)
	}
	return errors.Wrap(err, context)
}
