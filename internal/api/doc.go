// Package api serves the local HTTP API for starting, watching, and
// cancelling transcription runs.
//
// # Routes
//
//	GET    /health                     liveness, active runs, ffmpeg status
//	POST   /api/runs                   start a run (202 Accepted)
//	GET    /api/runs                   recent runs, active ones first
//	GET    /api/runs/{id}              one run
//	DELETE /api/runs/{id}              cancel an active run
//	GET    /api/runs/{id}/transcript   finished transcript (?format=srt for cues)
//
// Everything under /api requires "Authorization: Bearer <token>" when a
// token is configured.
//
// # Key Types
//
// Manager owns the pipelines started through the API. It drains each
// pipeline's event stream so in-memory progress stays current and falls
// back to the history store for runs that have finished or were started
// by the CLI.
//
// Run is the transport representation shared by the history table and
// live pipelines. DTOs use camelCase JSON tags and RFC3339 timestamps with
// milliseconds.
package api
