package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "healthetl/internal/errors"
	"healthetl/pkg/contracts/domain"
)

// Transformer cleans and enriches a validated table
type Transformer struct {
	layouts []string
	logger  *slog.Logger
}

// Option configures a Transformer
type Option func(*Transformer)

// WithDateLayouts replaces the accepted source date layouts
func WithDateLayouts(layouts ...string) Option {
	return func(t *Transformer) {
		if len(layouts) > 0 {
			t.layouts = layouts
		}
	}
}

// NewTransformer creates a transformer logging to logger
func NewTransformer(logger *slog.Logger, opts ...Option) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transformer{layouts: DefaultDateLayouts, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform runs the cleaning and enrichment steps on table in place and
// returns it together with the KPI summary and a cleaning report. A nil table
// is passed through as a nil result.
func (t *Transformer) Transform(ctx context.Context, table *domain.Table) (*domain.TransformResult, error) {
	if table == nil {
		t.logger.WarnContext(ctx, "transform_skipped", slog.String("reason", "no input table"))
		return nil, nil
	}

	report := domain.CleaningReport{RowsIn: table.Len()}

	if err := t.parseDates(table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := table.Rows[:0]
	for _, rec := range table.Rows {
		if rec.HasMissingSource() {
			report.DroppedIncomplete++
			continue
		}
		kept = append(kept, rec)
	}
	table.Rows = kept

	for i := range table.Rows {
		rec := &table.Rows[i]
		rec.Gender = domain.Some(Capitalize(rec.Gender.Value))
		rec.MedicalCondition = domain.Some(Capitalize(rec.MedicalCondition.Value))

		rec.LengthOfStayDays = domain.Some(stayDays(rec.AdmittedOn.Value, rec.DischargedOn.Value))
		rec.AgeGroup = AgeGroupFor(rec.Age.Value)
		rec.Readmitted = ReadmittedFor(rec.ReadmissionStatus.Value)

		// Unmapped statuses keep a null flag and stay out of the rate only
		if rec.Readmitted.IsNull() {
			report.UnmappedReadmission++
		}
		if rec.LengthOfStayDays.Value < 0 {
			report.NegativeStays++
		}
	}
	table.Enriched = true

	if report.UnmappedReadmission > 0 {
		t.logger.WarnContext(ctx, "unmapped_readmission_status",
			slog.Int("rows", report.UnmappedReadmission))
	}
	if report.NegativeStays > 0 {
		t.logger.WarnContext(ctx, "negative_length_of_stay",
			slog.Int("rows", report.NegativeStays))
	}

	metrics := Summarize(table.Rows)

	t.logger.InfoContext(ctx, "transform_completed",
		slog.Float64("average_length_of_stay_days", metrics.AverageLengthOfStayDays),
		slog.Float64("readmission_rate_percent", metrics.ReadmissionRatePercent),
		slog.Int("record_count", metrics.RecordCount),
		slog.Int("rows_in", report.RowsIn),
		slog.Int("dropped_incomplete", report.DroppedIncomplete),
		slog.Int("unmapped_readmission", report.UnmappedReadmission))

	return &domain.TransformResult{
		Table:   table,
		Metrics: metrics,
		Report:  report,
	}, nil
}

// parseDates fills AdmittedOn and DischargedOn. Null source dates stay null;
// a present value that matches no layout is an error.
func (t *Transformer) parseDates(table *domain.Table) error {
	for i := range table.Rows {
		rec := &table.Rows[i]

		admitted, err := t.parseField(rec.AdmissionDate, domain.ColumnAdmissionDate, i)
		if err != nil {
			return err
		}
		discharged, err := t.parseField(rec.DischargeDate, domain.ColumnDischargeDate, i)
		if err != nil {
			return err
		}
		rec.AdmittedOn = admitted
		rec.DischargedOn = discharged
	}
	return nil
}

func (t *Transformer) parseField(value domain.Null[string], column string, row int) (domain.Null[time.Time], error) {
	if value.IsNull() {
		return domain.None[time.Time](), nil
	}
	parsed, err := parseDate(value.Value, t.layouts)
	if err != nil {
		return domain.None[time.Time](), apperrors.NewParsingError(fmt.Sprintf("row %d: %s", row+1, column), err).
			WithContext("row", row+1).
			WithContext("column", column)
	}
	return domain.Some(parsed), nil
}
