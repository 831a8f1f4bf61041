// Package scheduler triggers pipeline runs.
//
// A Scheduler fires the daily run from a cron expression evaluated in the
// configured time zone and dates each run by that zone's calendar. Runs that
// fail with a retryable error (storage outages, stage timeouts) are retried
// with exponential backoff; validation and parsing failures are not.
// Overlapping triggers are skipped while a run is still executing.
//
// A SourceWatcher can additionally trigger a run whenever the source snapshot
// is rewritten on disk.
package scheduler
