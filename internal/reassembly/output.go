package reassembly

import (
	"fmt"

	"chunkscribe/internal/fileutil"
	"chunkscribe/internal/subtitles"
)

// OutputOptions controls where and what WriteOutputs writes.
type OutputOptions struct {
	// OutputDir overrides the source's directory when set.
	OutputDir string
	// Subtitles requests an SRT file. Cues are ignored without it.
	Subtitles bool
}

// Outputs lists the files written for a transcript.
type Outputs struct {
	TextPath     string
	SubtitlePath string
}

// WriteOutputs writes <base>.txt and, when subtitles were requested,
// <base>.srt. A failed subtitle write removes the text file again so a run
// never leaves half its outputs behind.
func WriteOutputs(t Transcript, source string, opts OutputOptions) (Outputs, error) {
	base := fileutil.OutputBase(source, opts.OutputDir)
	out := Outputs{TextPath: base + ".txt"}

	text := t.FullText
	if text != "" {
		text += "\n"
	}
	if err := fileutil.WriteFileAtomic(out.TextPath, []byte(text), 0o644); err != nil {
		return Outputs{}, fmt.Errorf("write transcript: %w", err)
	}
	if !opts.Subtitles {
		return out, nil
	}

	if issues := subtitles.Validate(t.Cues, t.Duration); len(issues) > 0 {
		_ = fileutil.RemoveIfExists(out.TextPath)
		return Outputs{}, fmt.Errorf("write subtitles: invalid cues: %s", issues[0])
	}
	out.SubtitlePath = base + ".srt"
	if err := fileutil.WriteFileAtomic(out.SubtitlePath, []byte(subtitles.FormatSRT(t.Cues)), 0o644); err != nil {
		_ = fileutil.RemoveIfExists(out.TextPath)
		return Outputs{}, fmt.Errorf("write subtitles: %w", err)
	}
	return out, nil
}
