// Package transcription submits audio segments to an OpenAI-compatible
// speech-to-text endpoint.
//
// Client uploads one segment per call as multipart form data, parses plain
// or verbose JSON responses into text and segment-relative cues, and retries
// timeouts, rate limits, and server errors with capped exponential backoff.
// Authentication failures, rejected audio, and oversize payloads surface
// immediately, tagged with the matching services error marker.
package transcription
