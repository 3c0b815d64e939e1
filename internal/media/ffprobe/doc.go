// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns a Result holding streams and
// container metadata. Helper methods on Result report stream counts, the
// first audio stream, and numeric duration, size, and bitrate values.
package ffprobe
