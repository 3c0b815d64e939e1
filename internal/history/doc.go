// Package history persists one record per transcription run in SQLite.
//
// The store is optional: the pipeline records into it when configured, and
// the CLI and HTTP API read it back to list past runs. Records are keyed by
// the run's UUID and carry the terminal state, segment counts, error class,
// and output paths.
package history
