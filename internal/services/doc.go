// Package services implements the business layer between the HTTP handlers
// and the pipeline.
//
// RunService starts runs on demand, either in the background or
// synchronously, and answers queries about runs by merging the live progress
// held by the operations manager with the records kept in the history store.
// HealthService reports liveness and a readiness view covering the scheduler,
// the last run and the history database.
//
// Services depend on small interfaces so handlers and tests can substitute
// fakes:
//
//	svc := services.NewRunService(ctx, recorder, manager, manager.GetBroadcaster(), store, cfg.Today, logger)
//	accepted, err := svc.StartRun(ctx, operations.RunRequest{DryRun: true})
package services
