// Package reassembly stitches per-segment transcription results back into a
// single transcript on the source timeline.
//
// Merge is pure: given the same results and plan it always produces the same
// transcript. WriteOutputs persists a transcript as a plain-text file and,
// when cues are present or requested, an SRT file with the same base name.
package reassembly
