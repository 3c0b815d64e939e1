// Package services defines shared utilities consumed by the pipeline stages
// and the remote transcription integration.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, segment indices, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the error classes surfaced to the user (unreadable media,
//     encoding failure, authentication, transient service errors, ...).
//   - SegmentError, which pins a fatal failure to the segment and time range
//     that produced it so callers can render an actionable message.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
