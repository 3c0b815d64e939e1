// Package workflow runs the chunking pipeline for one input file.
//
// A Pipeline probes the media, plans segments, extracts them on a producer
// goroutine, and feeds a bounded pool of transcription workers. Results are
// collected by segment index and merged once every segment has succeeded.
// Any fatal segment error cancels the remaining work and fails the run; a
// Cancel request stops new submissions and discards partial results.
//
// Progress is published as Events on a buffered channel. Publishing never
// blocks the pipeline: when the buffer is full the oldest pending event is
// dropped, and the terminal event is always delivered before the channel
// closes.
package workflow
