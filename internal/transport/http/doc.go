// Package http implements the admin API of the pipeline.
//
// Handlers stay thin: they parse and validate the request, call a service
// and render the result with chi/render. Failures go through the shared
// RFC 7807 error handler.
//
// # Routes
//
//	GET  /api/health         readiness with scheduler, last run and history state
//	GET  /api/health/live    liveness
//	GET  /api/metrics        Prometheus exposition
//	GET  /api/runs           recorded runs (limit, date, status filters)
//	POST /api/runs           start a run; ?wait=true blocks for the outcome
//	GET  /api/runs/{id}      live progress and stored record of one run
//	GET  /ws                 live run events
//
// A POST while another run executes is answered with 409.
package http
