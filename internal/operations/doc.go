// Package operations runs the daily pipeline as an ordered set of steps.
//
// Core components:
//
// Manager executes one run at a time. Steps run strictly in dependency order;
// the first failing step stops the run and the remaining steps are reported
// as skipped. A step that returns a *SkipError (via Skip) is reported as
// skipped and the run continues, which is how an absent source snapshot
// propagates through validate, transform and publish without writing
// anything.
//
// Step is the unit of work. LoadStep, ValidateStep, TransformStep and
// PublishStep wrap the loader, validator, transformer and publisher and hand
// data to each other through the OperationState context.
//
// StatusBroadcaster keeps one snapshot per run and pushes it to an EventHub
// (the websocket hub in the server) on every change.
//
// PipelineTracer records spans and business metrics when telemetry is on.
//
// Example usage:
//
//	registry, _ := operations.NewPipelineRegistry(l, v, t, p, logger)
//	manager := operations.NewManager(hub, registry, operations.NewConfig(), logger)
//	resp, err := manager.Execute(ctx, operations.RunRequest{RunDate: date})
//
// Failures are *OperationError values; IsRetryable reports whether repeating
// the whole run may succeed. Validation and parsing failures never are.
package operations
