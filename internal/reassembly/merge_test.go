package reassembly

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"chunkscribe/internal/segment"
	"chunkscribe/internal/services"
	"chunkscribe/internal/services/transcription"
	"chunkscribe/internal/subtitles"
)

func fourSegmentPlan() segment.Plan {
	return segment.Plan{
		Duration: 2000,
		Segments: []segment.Segment{
			{Index: 0, Start: 0, End: 600},
			{Index: 1, Start: 600, End: 1200},
			{Index: 2, Start: 1200, End: 1800},
			{Index: 3, Start: 1800, End: 2000},
		},
	}
}

func TestMergeOffsetsCuesBySegmentStart(t *testing.T) {
	results := []transcription.Result{
		{SegmentIndex: 1, Text: "second", Cues: []subtitles.Cue{{Start: 12.0, End: 14.5, Text: "second"}}},
		{SegmentIndex: 0, Text: "first", Cues: []subtitles.Cue{{Start: 1, End: 2, Text: "first"}}},
		{SegmentIndex: 3, Text: "fourth"},
		{SegmentIndex: 2, Text: "third"},
	}
	transcript, err := Merge(results, fourSegmentPlan(), 2000)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if transcript.FullText != "first second third fourth" {
		t.Fatalf("unexpected text %q", transcript.FullText)
	}
	want := []subtitles.Cue{
		{Start: 1, End: 2, Text: "first"},
		{Start: 612.0, End: 614.5, Text: "second"},
	}
	if !reflect.DeepEqual(transcript.Cues, want) {
		t.Fatalf("cues = %+v, want %+v", transcript.Cues, want)
	}
}

func TestMergeClampsOverlapAcrossBoundary(t *testing.T) {
	plan := segment.Plan{Duration: 1200, Segments: []segment.Segment{
		{Index: 0, Start: 0, End: 614},
		{Index: 1, Start: 614, End: 1200},
	}}
	// The last cue of segment 0 runs past the cut, so the first cue of
	// segment 1 (614.2 absolute) must start where it ends.
	results := []transcription.Result{
		{SegmentIndex: 0, Text: "a", Cues: []subtitles.Cue{{Start: 612, End: 614.6, Text: "tail of zero"}}},
		{SegmentIndex: 1, Text: "b", Cues: []subtitles.Cue{{Start: 0.2, End: 1.0, Text: "head of one"}}},
	}

	transcript, err := Merge(results, plan, 1200)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(transcript.Cues) != 2 {
		t.Fatalf("expected 2 cues, got %+v", transcript.Cues)
	}
	second := transcript.Cues[1]
	if second.Start != 614.6 || second.End != 615.0 {
		t.Fatalf("expected clamped cue 614.6-615.0, got %+v", second)
	}
	if issues := subtitles.Validate(transcript.Cues, 1200); len(issues) != 0 {
		t.Fatalf("merged cues not monotonic: %v", issues)
	}
}

func TestMergeClampsToDuration(t *testing.T) {
	plan := segment.Plan{Duration: 30, Segments: []segment.Segment{{Index: 0, Start: 0, End: 30}}}
	results := []transcription.Result{{SegmentIndex: 0, Text: "x", Cues: []subtitles.Cue{
		{Start: -1, End: 2, Text: "early"},
		{Start: 5, End: 4, Text: "backwards"},
		{Start: 29, End: 31, Text: "late"},
		{Start: 31, End: 32, Text: "beyond"},
		{Start: 10, End: 11, Text: "  "},
	}}}
	transcript, err := Merge(results, plan, 30)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	want := []subtitles.Cue{
		{Start: 0, End: 2, Text: "early"},
		{Start: 5, End: 5, Text: "backwards"},
		{Start: 29, End: 30, Text: "late"},
		{Start: 30, End: 30, Text: "beyond"},
	}
	if !reflect.DeepEqual(transcript.Cues, want) {
		t.Fatalf("cues = %+v, want %+v", transcript.Cues, want)
	}
}

func TestMergeCuesStayMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 2026))
	for trial := range 50 {
		plan := segment.Plan{}
		var results []transcription.Result
		cursor := 0.0
		for i := range 1 + rng.IntN(6) {
			length := 1 + rng.Float64()*100
			plan.Segments = append(plan.Segments, segment.Segment{Index: i, Start: cursor, End: cursor + length})
			result := transcription.Result{SegmentIndex: i, Text: "t"}
			for range rng.IntN(8) {
				start := rng.Float64()*length*1.2 - 1
				result.Cues = append(result.Cues, subtitles.Cue{
					Start: start,
					End:   start + rng.Float64()*5 - 1,
					Text:  "cue",
				})
			}
			results = append(results, result)
			cursor += length
		}
		plan.Duration = cursor
		rng.Shuffle(len(results), func(i, j int) { results[i], results[j] = results[j], results[i] })

		transcript, err := Merge(results, plan, plan.Duration)
		if err != nil {
			t.Fatalf("trial %d: Merge returned error: %v", trial, err)
		}
		if issues := subtitles.Validate(transcript.Cues, plan.Duration); len(issues) != 0 {
			t.Fatalf("trial %d: %v", trial, issues)
		}
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	results := []transcription.Result{
		{SegmentIndex: 2, Text: "c", Cues: []subtitles.Cue{{Start: 0.5, End: 1, Text: "c"}}},
		{SegmentIndex: 0, Text: "a ", Cues: []subtitles.Cue{{Start: 0.5, End: 1, Text: "a"}}},
		{SegmentIndex: 3, Text: ""},
		{SegmentIndex: 1, Text: " b", Cues: []subtitles.Cue{{Start: 0.5, End: 1, Text: "b"}}},
	}
	first, err := Merge(results, fourSegmentPlan(), 2000)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	second, err := Merge(results, fourSegmentPlan(), 2000)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("merge not deterministic: %+v vs %+v", first, second)
	}
	if first.FullText != "a  b c" {
		t.Fatalf("unexpected text %q", first.FullText)
	}
	if results[0].SegmentIndex != 2 {
		t.Fatal("Merge must not reorder the caller's slice")
	}
}

func TestMergeJoinRules(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{"plain", []string{"hello", "world"}, "hello world"},
		{"sentence end", []string{"Done.", "Next"}, "Done. Next"},
		{"trailing space", []string{"hello ", "world"}, "hello world"},
		{"leading newline", []string{"hello", "\nworld"}, "hello\nworld"},
		{"empty middle", []string{"hello", "   ", "world"}, "hello world"},
		{"repeated boundary word", []string{"the cat sat", "sat down"}, "the cat sat sat down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := segment.Plan{Duration: float64(len(tt.texts))}
			results := make([]transcription.Result, len(tt.texts))
			for i, text := range tt.texts {
				plan.Segments = append(plan.Segments, segment.Segment{Index: i, Start: float64(i), End: float64(i + 1)})
				results[i] = transcription.Result{SegmentIndex: i, Text: text}
			}
			got, err := Merge(results, plan, plan.Duration)
			if err != nil {
				t.Fatalf("Merge returned error: %v", err)
			}
			if got.FullText != tt.want {
				t.Fatalf("FullText = %q, want %q", got.FullText, tt.want)
			}
		})
	}
}

func TestMergeRejectsIncompleteResults(t *testing.T) {
	plan := fourSegmentPlan()
	tests := []struct {
		name    string
		indices []int
	}{
		{"missing", []int{0, 1, 2}},
		{"duplicate", []int{0, 1, 1, 3}},
		{"out of range", []int{0, 1, 2, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]transcription.Result, 0, len(tt.indices))
			for _, idx := range tt.indices {
				results = append(results, transcription.Result{SegmentIndex: idx, Text: "x"})
			}
			if _, err := Merge(results, plan, 2000); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if _, err := Merge(nil, segment.Plan{}, 0); err == nil {
		t.Fatal("expected error for empty plan")
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "talk.mp4")
	transcript := Transcript{
		FullText: "Hello there.",
		Duration: 700,
		Cues:     []subtitles.Cue{{Start: 612, End: 614.5, Text: "Hello there."}},
	}
	out, err := WriteOutputs(transcript, source, OutputOptions{Subtitles: true})
	if err != nil {
		t.Fatalf("WriteOutputs returned error: %v", err)
	}
	if out.TextPath != filepath.Join(dir, "talk.txt") || out.SubtitlePath != filepath.Join(dir, "talk.srt") {
		t.Fatalf("unexpected paths %+v", out)
	}
	text, err := os.ReadFile(out.TextPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "Hello there.\n" {
		t.Fatalf("unexpected transcript %q", text)
	}
	srt, err := os.ReadFile(out.SubtitlePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(srt), "00:10:12,000 --> 00:10:14,500") {
		t.Fatalf("unexpected srt %q", srt)
	}
}

func TestWriteOutputsTextOnlyIntoOutputDir(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	out, err := WriteOutputs(Transcript{FullText: "words"}, "/media/talk.mkv", OutputOptions{OutputDir: outDir})
	if err != nil {
		t.Fatalf("WriteOutputs returned error: %v", err)
	}
	if out.SubtitlePath != "" {
		t.Fatalf("did not expect subtitles, got %s", out.SubtitlePath)
	}
	if out.TextPath != filepath.Join(outDir, "talk.txt") {
		t.Fatalf("unexpected text path %s", out.TextPath)
	}
}

func TestWriteOutputsSkipsUnrequestedSubtitles(t *testing.T) {
	dir := t.TempDir()
	transcript := Transcript{
		FullText: "Hello there.",
		Duration: 10,
		Cues:     []subtitles.Cue{{Start: 1, End: 2, Text: "Hello there."}},
	}
	out, err := WriteOutputs(transcript, filepath.Join(dir, "talk.mp4"), OutputOptions{})
	if err != nil {
		t.Fatalf("WriteOutputs returned error: %v", err)
	}
	if out.SubtitlePath != "" {
		t.Fatalf("did not expect subtitles, got %s", out.SubtitlePath)
	}
	if _, err := os.Stat(filepath.Join(dir, "talk.srt")); !os.IsNotExist(err) {
		t.Fatalf("expected no srt file, stat err=%v", err)
	}
}

func TestWriteOutputsRejectsInvalidCues(t *testing.T) {
	dir := t.TempDir()
	transcript := Transcript{
		FullText: "x",
		Duration: 10,
		Cues:     []subtitles.Cue{{Start: 5, End: 6, Text: "b"}, {Start: 1, End: 2, Text: "a"}},
	}
	if _, err := WriteOutputs(transcript, filepath.Join(dir, "talk.mp4"), OutputOptions{Subtitles: true}); err == nil {
		t.Fatal("expected error for unordered cues")
	}
	if _, err := os.Stat(filepath.Join(dir, "talk.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected no transcript left behind, stat err=%v", err)
	}
}
