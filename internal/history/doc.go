// Package history persists the outcome of every pipeline run.
//
// Records are kept in a SQL table (etl_runs) on SQLite by default, with
// PostgreSQL and MySQL available through the same Store. A RecordingRunner
// wraps the run manager so scheduled, watched and manual runs are all
// recorded, including failed and skipped ones.
package history
