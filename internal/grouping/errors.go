package grouping

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrInvalidInput is matched by every *InvalidInputError via errors.Is.
var ErrInvalidInput = errors.New("invalid grouping input")

// Fields referenced by a Violation.
const (
	FieldSubjects   = "subjects"
	FieldID         = "id"
	FieldWeight     = "weight"
	FieldGroupCount = "groupCount"
)

// Violation describes one broken input constraint. Index is the position of the
// offending subject, or -1 when the violation is not tied to a single subject.
type Violation struct {
	Field  string `json:"field"`
	Index  int    `json:"index"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (v *Violation) Error() string {
	if v.Index >= 0 {
		return fmt.Sprintf("subjects[%d].%s: %s", v.Index, v.Field, v.Reason)
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// InvalidInputError is returned when the subject list or group count cannot be
// grouped. It reports every violation found, not only the first.
type InvalidInputError struct {
	errs error
}

func newInvalidInputError(errs error) *InvalidInputError {
	return &InvalidInputError{errs: errs}
}

func (e *InvalidInputError) Error() string {
	parts := make([]string, 0, len(multierr.Errors(e.errs)))
	for _, err := range multierr.Errors(e.errs) {
		parts = append(parts, err.Error())
	}
	return ErrInvalidInput.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrInvalidInput.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Violations returns the individual constraint violations in detection order.
func (e *InvalidInputError) Violations() []*Violation {
	errs := multierr.Errors(e.errs)
	out := make([]*Violation, 0, len(errs))
	for _, err := range errs {
		var v *Violation
		if errors.As(err, &v) {
			out = append(out, v)
		}
	}
	return out
}
