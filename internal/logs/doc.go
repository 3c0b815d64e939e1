// Package logs reads the chunkscribe log file for `chunkscribe logs`.
//
// Last returns the trailing lines of a file with bounded memory, and Follow
// polls for appended lines until its context ends, starting over when the
// file is truncated or replaced by rotation.
package logs
