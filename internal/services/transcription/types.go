package transcription

import (
	"context"

	"chunkscribe/internal/segment"
	"chunkscribe/internal/subtitles"
)

// Cue is a timed span of recognized speech. Times are relative to the start
// of the segment that produced it.
type Cue = subtitles.Cue

// Options selects how a segment is transcribed.
type Options struct {
	Model        string
	WantCues     bool
	LanguageHint string
	Prompt       string
}

// Result is the outcome of one successful segment transcription.
type Result struct {
	SegmentIndex int
	Text         string
	Cues         []Cue
}

// Transcriber turns one audio segment into text. Implementations must be
// safe for concurrent use.
type Transcriber interface {
	Transcribe(ctx context.Context, audio segment.Audio, opts Options) (Result, error)
}
