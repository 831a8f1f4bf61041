package operations

import (
	"context"
	"errors"
	"log/slog"

	"healthetl/internal/loader"
	"healthetl/internal/publish"
	"healthetl/internal/storage"
	"healthetl/internal/transform"
	"healthetl/internal/validation"
	"healthetl/pkg/contracts/domain"
)

// reasonNoInput is the skip reason for steps downstream of an absent source
const reasonNoInput = "no input: source snapshot absent"

// LoadStep reads the source snapshot into the run state
type LoadStep struct {
	BaseStage
	loader loader.Loader
	logger *slog.Logger
}

// NewLoadStep creates the load step
func NewLoadStep(l loader.Loader, logger *slog.Logger) *LoadStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadStep{
		BaseStage: NewBaseStage(StepIDLoad, StepNameLoad, nil),
		loader:    l,
		logger:    logger,
	}
}

// Execute loads the table. A missing source skips the step and leaves the
// table absent for the rest of the run.
func (s *LoadStep) Execute(ctx context.Context, state *OperationState) error {
	state.SetContext(ContextKeySource, s.loader.Source())

	table, err := s.loader.Load(ctx)
	if errors.Is(err, loader.ErrSourceNotFound) {
		s.logger.WarnContext(ctx, "source_absent",
			slog.String("source", s.loader.Source()),
			slog.String("run_id", state.ID))
		return Skip("source snapshot not found")
	}
	if err != nil {
		return err
	}

	state.SetContext(ContextKeyTable, table)
	if step := state.GetStage(s.ID()); step != nil {
		step.SetMetadata("rows", table.Len())
		step.SetMetadata("columns", len(table.Columns))
	}
	return nil
}

// ValidateStep gates the table on record integrity
type ValidateStep struct {
	BaseStage
	validator *validation.Validator
}

// NewValidateStep creates the validate step
func NewValidateStep(v *validation.Validator) *ValidateStep {
	return &ValidateStep{
		BaseStage: NewBaseStage(StepIDValidate, StepNameValidate, []string{StepIDLoad}),
		validator: v,
	}
}

// Execute validates the loaded table
func (s *ValidateStep) Execute(ctx context.Context, state *OperationState) error {
	table := tableFrom(state)
	if _, err := s.validator.Validate(ctx, table); err != nil {
		return NewValidationError(s.ID(), err)
	}
	if table == nil {
		return Skip(reasonNoInput)
	}
	return nil
}

// TransformStep cleans the table and computes the KPI summary
type TransformStep struct {
	BaseStage
	transformer *transform.Transformer
}

// NewTransformStep creates the transform step
func NewTransformStep(t *transform.Transformer) *TransformStep {
	return &TransformStep{
		BaseStage:   NewBaseStage(StepIDTransform, StepNameTransform, []string{StepIDValidate}),
		transformer: t,
	}
}

// Execute transforms the validated table
func (s *TransformStep) Execute(ctx context.Context, state *OperationState) error {
	result, err := s.transformer.Transform(ctx, tableFrom(state))
	if err != nil {
		return err
	}
	if result == nil {
		return Skip(reasonNoInput)
	}

	state.SetContext(ContextKeyResult, result)
	if step := state.GetStage(s.ID()); step != nil {
		step.SetMetadata("record_count", result.Metrics.RecordCount)
		step.SetMetadata("rows_dropped", result.Report.RowsDropped())
		step.SetMetadata("unmapped_readmission", result.Report.UnmappedReadmission)
	}
	return nil
}

// PublishStep writes the cleaned table and KPI summary to the sink
type PublishStep struct {
	BaseStage
	publisher *publish.Publisher
}

// NewPublishStep creates the publish step
func NewPublishStep(p *publish.Publisher) *PublishStep {
	return &PublishStep{
		BaseStage: NewBaseStage(StepIDPublish, StepNamePublish, []string{StepIDTransform}),
		publisher: p,
	}
}

// Execute publishes the transform result under the run date. Dry runs write
// to a throwaway in-memory sink.
func (s *PublishStep) Execute(ctx context.Context, state *OperationState) error {
	publisher := s.publisher
	if state.DryRun() {
		publisher = publisher.WithSink(storage.NewMemorySink())
	}

	published, err := publisher.Publish(ctx, resultFrom(state), state.RunDate())
	if published != nil {
		state.SetContext(ContextKeyPublished, published)
	}
	if err != nil {
		return err
	}
	if published == nil {
		return Skip(reasonNoInput)
	}
	return nil
}

// Validate requires a run date
func (s *PublishStep) Validate(state *OperationState) error {
	if state.RunDate().IsZero() {
		return errors.New("run date is required")
	}
	return nil
}

// NewPipelineRegistry registers the four pipeline steps in execution order
func NewPipelineRegistry(l loader.Loader, v *validation.Validator, t *transform.Transformer, p *publish.Publisher, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry()
	steps := []Step{
		NewLoadStep(l, logger),
		NewValidateStep(v),
		NewTransformStep(t),
		NewPublishStep(p),
	}
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func tableFrom(state *OperationState) *domain.Table {
	v, _ := state.GetContext(ContextKeyTable)
	table, _ := v.(*domain.Table)
	return table
}

func resultFrom(state *OperationState) *domain.TransformResult {
	v, _ := state.GetContext(ContextKeyResult)
	result, _ := v.(*domain.TransformResult)
	return result
}

func publishedFrom(state *OperationState) *publish.Published {
	v, _ := state.GetContext(ContextKeyPublished)
	published, _ := v.(*publish.Published)
	return published
}
