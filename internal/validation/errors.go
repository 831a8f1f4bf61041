package validation

import (
	"fmt"

	apperrors "healthetl/internal/errors"
)

// Rule names a validation check
type Rule string

const (
	RuleAgeRange      Rule = "age_range"
	RuleGenderNotNull Rule = "gender_not_null"
	RuleDatesNotNull  Rule = "dates_not_null"
)

// ValidationError reports the first rule a table violates.
// Row is the 1-based data row of the offending record.
type ValidationError struct {
	Rule    Rule
	Row     int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed [%s]: row %d: %s", e.Rule, e.Row, e.Message)
}

// Unwrap exposes the failure as an application validation error
func (e *ValidationError) Unwrap() error {
	return apperrors.NewAppValidationError(e.Message).
		WithContext("rule", string(e.Rule)).
		WithContext("row", e.Row)
}
