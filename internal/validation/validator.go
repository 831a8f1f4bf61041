package validation

import (
	"context"
	"fmt"
	"log/slog"

	"healthetl/pkg/contracts/domain"
)

// Validator is a gate over a loaded table. It never repairs data.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a validator logging to logger
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// Validate checks, in order, that every age lies in [MinAge, MaxAge], that no
// gender is null and that no admission or discharge date is null. The first
// violation is returned as a *ValidationError. A nil table is passed through.
func (v *Validator) Validate(ctx context.Context, table *domain.Table) (*domain.Table, error) {
	if table == nil {
		v.logger.WarnContext(ctx, "validation_skipped", slog.String("reason", "no input table"))
		return nil, nil
	}

	checks := []func(*domain.Table) error{
		checkAgeRange,
		checkGender,
		checkDates,
	}
	for _, check := range checks {
		if err := check(table); err != nil {
			v.logger.ErrorContext(ctx, "validation_failed", slog.String("error", err.Error()))
			return nil, err
		}
	}

	v.logger.InfoContext(ctx, "validation_passed", slog.Int("rows", table.Len()))
	return table, nil
}

func checkAgeRange(table *domain.Table) error {
	for i, rec := range table.Rows {
		if rec.Age.IsNull() {
			return &ValidationError{
				Rule:    RuleAgeRange,
				Row:     i + 1,
				Message: fmt.Sprintf("%s is missing; must be within [%d, %d]", domain.ColumnAge, domain.MinAge, domain.MaxAge),
			}
		}
		if rec.Age.Value < domain.MinAge || rec.Age.Value > domain.MaxAge {
			return &ValidationError{
				Rule:    RuleAgeRange,
				Row:     i + 1,
				Message: fmt.Sprintf("%s %d is outside [%d, %d]", domain.ColumnAge, rec.Age.Value, domain.MinAge, domain.MaxAge),
			}
		}
	}
	return nil
}

func checkGender(table *domain.Table) error {
	for i, rec := range table.Rows {
		if rec.Gender.IsNull() {
			return &ValidationError{
				Rule:    RuleGenderNotNull,
				Row:     i + 1,
				Message: fmt.Sprintf("%s is missing", domain.ColumnGender),
			}
		}
	}
	return nil
}

func checkDates(table *domain.Table) error {
	for i, rec := range table.Rows {
		switch {
		case rec.AdmissionDate.IsNull():
			return &ValidationError{
				Rule:    RuleDatesNotNull,
				Row:     i + 1,
				Message: fmt.Sprintf("%s is missing", domain.ColumnAdmissionDate),
			}
		case rec.DischargeDate.IsNull():
			return &ValidationError{
				Rule:    RuleDatesNotNull,
				Row:     i + 1,
				Message: fmt.Sprintf("%s is missing", domain.ColumnDischargeDate),
			}
		}
	}
	return nil
}
