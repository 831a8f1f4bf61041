// Package shared holds helpers used across packages that belong to no single
// layer.
//
// testutil provides LogCapture, a slog.Handler that records entries in memory
// so tests can assert on structured log output:
//
//	logger, capture := testutil.NewLogCapture()
//	svc := services.NewRunService(ctx, runner, state, nil, nil, nil, logger)
//	...
//	testutil.RequireLogged(t, capture, slog.LevelWarn, "background_run_failed")
package shared
