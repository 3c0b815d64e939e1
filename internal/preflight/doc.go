// Package preflight provides readiness checks for the external binaries,
// the remote transcription service, and the filesystem paths chunkscribe
// depends on.
//
// These checks run in two contexts:
//   - The transcribe command calls RunAll before starting a pipeline. If a
//     check fails the run is refused instead of failing after extraction.
//   - The "chunkscribe status" command and the API health endpoint use the
//     individual checks to display service health.
package preflight
