// Package app wires the pipeline and its surfaces together and owns their
// lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration from defaults, YAML and HEALTHETL_* variables
//	2. Initialize logging and OpenTelemetry
//	3. Build the storage sink and the load, validate, transform and publish steps
//	4. Create the run manager, the optional history store and the scheduler
//	5. Build the run and health services and the admin API router
//
// # Usage
//
// A one-shot run, as used by cron jobs and CI:
//
//	a, err := app.New(ctx, "healthetl.yaml")
//	resp, err := a.RunOnce(ctx, time.Time{}, false)
//
// The long-running service schedules daily runs and serves the admin API
// until ctx is cancelled:
//
//	err := a.Serve(ctx)
//	a.Close(ctx)
package app
