package grouping

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// Validate checks that subjects and groupCount can be partitioned. It returns an
// *InvalidInputError listing every violation, or nil. Inputs are not modified.
func Validate(subjects []Subject, groupCount int) error {
	var errs error

	if len(subjects) == 0 {
		errs = multierr.Append(errs, &Violation{
			Field:  FieldSubjects,
			Index:  -1,
			Reason: "at least one subject is required",
		})
	}

	seen := make(map[string]int, len(subjects))
	var total float64
	for i, s := range subjects {
		if err := checkWeight(i, s.Weight); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			total += s.Weight
		}

		id := strings.TrimSpace(s.ID)
		if id == "" {
			errs = multierr.Append(errs, &Violation{
				Field:  FieldID,
				Index:  i,
				Reason: "identifier must not be empty",
			})
			continue
		}
		if first, ok := seen[id]; ok {
			errs = multierr.Append(errs, &Violation{
				Field:  FieldID,
				Index:  i,
				Value:  s.ID,
				Reason: fmt.Sprintf("duplicate identifier, first used by subjects[%d]", first),
			})
			continue
		}
		seen[id] = i
	}

	if math.IsInf(total, 0) {
		errs = multierr.Append(errs, &Violation{
			Field:  FieldSubjects,
			Index:  -1,
			Reason: "total weight overflows",
		})
	}

	switch {
	case groupCount < 1:
		errs = multierr.Append(errs, &Violation{
			Field:  FieldGroupCount,
			Index:  -1,
			Value:  strconv.Itoa(groupCount),
			Reason: fmt.Sprintf("group count must be at least 1, got %d", groupCount),
		})
	case len(subjects) > 0 && groupCount > len(subjects):
		errs = multierr.Append(errs, &Violation{
			Field:  FieldGroupCount,
			Index:  -1,
			Value:  strconv.Itoa(groupCount),
			Reason: fmt.Sprintf("group count %d exceeds subject count %d", groupCount, len(subjects)),
		})
	}

	if errs != nil {
		return newInvalidInputError(errs)
	}
	return nil
}

func checkWeight(index int, weight float64) *Violation {
	value := strconv.FormatFloat(weight, 'g', -1, 64)
	switch {
	case math.IsNaN(weight) || math.IsInf(weight, 0):
		return &Violation{Field: FieldWeight, Index: index, Value: value, Reason: "weight must be a finite number"}
	case weight <= 0:
		return &Violation{Field: FieldWeight, Index: index, Value: value, Reason: "weight must be positive, got " + value}
	}
	return nil
}
