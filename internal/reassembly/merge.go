package reassembly

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"chunkscribe/internal/segment"
	"chunkscribe/internal/services"
	"chunkscribe/internal/services/transcription"
	"chunkscribe/internal/subtitles"
)

// Transcript is the merged output of a run. Cue times are absolute seconds
// on the source timeline.
type Transcript struct {
	FullText string
	Cues     []subtitles.Cue
	Duration float64
}

// Merge joins results in plan order. Every plan index must be covered by
// exactly one result.
func Merge(results []transcription.Result, plan segment.Plan, duration float64) (Transcript, error) {
	if plan.Len() == 0 {
		return Transcript{}, services.Wrap(services.ErrValidation, "merging", "merge", "plan has no segments", nil)
	}
	if len(results) != plan.Len() {
		return Transcript{}, services.Wrap(services.ErrValidation, "merging", "merge",
			fmt.Sprintf("have %d results for %d segments", len(results), plan.Len()), nil)
	}
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b transcription.Result) int {
		return a.SegmentIndex - b.SegmentIndex
	})
	for i, result := range ordered {
		if result.SegmentIndex != i {
			return Transcript{}, services.Wrap(services.ErrValidation, "merging", "merge",
				fmt.Sprintf("segment %d missing or duplicated", i), nil)
		}
	}
	if duration <= 0 {
		duration = plan.Duration
	}

	var text strings.Builder
	cues := make([]subtitles.Cue, 0)
	prevEnd := 0.0
	for i, result := range ordered {
		appendText(&text, result.Text)

		offset := plan.Segments[i].Start
		for _, cue := range result.Cues {
			body := strings.TrimSpace(cue.Text)
			if body == "" {
				continue
			}
			start := clamp(cue.Start+offset, 0, duration)
			end := clamp(cue.End+offset, 0, duration)
			start = max(start, prevEnd)
			end = max(end, start)
			cues = append(cues, subtitles.Cue{Start: start, End: end, Text: body})
			prevEnd = end
		}
	}

	return Transcript{
		FullText: strings.TrimSpace(text.String()),
		Cues:     cues,
		Duration: duration,
	}, nil
}

// appendText adds next to b with a single separating space unless one side
// already carries whitespace at the join.
func appendText(b *strings.Builder, next string) {
	if strings.TrimSpace(next) == "" {
		return
	}
	if b.Len() > 0 {
		last, _ := utf8.DecodeLastRuneInString(b.String())
		first, _ := utf8.DecodeRuneInString(next)
		if !unicode.IsSpace(last) && !unicode.IsSpace(first) {
			b.WriteByte(' ')
		}
	}
	b.WriteString(next)
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
