package segment

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"chunkscribe/internal/logging"
	"chunkscribe/internal/media"
)

// CutFinder picks a cut point near an ideal target time.
type CutFinder interface {
	FindCutNear(ctx context.Context, target float64) (float64, error)
}

// CutStrategy builds the CutFinder used for one file.
type CutStrategy func(file media.File) CutFinder

// FixedCutFinder always cuts at the target.
type FixedCutFinder struct{}

// FindCutNear returns target unchanged.
func (FixedCutFinder) FindCutNear(_ context.Context, target float64) (float64, error) {
	return target, nil
}

// FixedCuts is the CutStrategy that never moves a cut.
func FixedCuts(media.File) CutFinder {
	return FixedCutFinder{}
}

// Silence is one detected quiet interval, in seconds.
type Silence struct {
	Start float64
	End   float64
}

// Midpoint returns the centre of the interval.
func (s Silence) Midpoint() float64 {
	return (s.Start + s.End) / 2
}

// SilenceOptions tunes ffmpeg silencedetect.
type SilenceOptions struct {
	NoiseDB      float64
	MinSeconds   float64
	SearchWindow float64
}

func (o SilenceOptions) withDefaults() SilenceOptions {
	if o.NoiseDB >= 0 {
		o.NoiseDB = -30
	}
	if o.MinSeconds <= 0 {
		o.MinSeconds = 0.5
	}
	if o.SearchWindow <= 0 {
		o.SearchWindow = DefaultSearchWindow
	}
	return o
}

// SilenceCutFinder moves cuts to the midpoint of the nearest detected silence.
// Detection runs once, on first use, and the intervals are cached.
type SilenceCutFinder struct {
	run      media.Runner
	binary   string
	path     string
	duration float64
	opts     SilenceOptions
	logger   *slog.Logger

	once     sync.Once
	silences []Silence
	err      error
}

// NewSilenceCutFinder constructs a finder for the file at path.
func NewSilenceCutFinder(run media.Runner, ffmpegBinary string, file media.File, opts SilenceOptions, logger *slog.Logger) *SilenceCutFinder {
	if run == nil {
		run = media.ExecRunner
	}
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &SilenceCutFinder{
		run:      run,
		binary:   ffmpegBinary,
		path:     file.Path,
		duration: file.DurationSeconds,
		opts:     opts.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "silence"),
	}
}

// SilenceCuts returns a CutStrategy that builds a SilenceCutFinder per file.
func SilenceCuts(run media.Runner, ffmpegBinary string, opts SilenceOptions, logger *slog.Logger) CutStrategy {
	return func(file media.File) CutFinder {
		return NewSilenceCutFinder(run, ffmpegBinary, file, opts, logger)
	}
}

// FindCutNear returns the midpoint of the silence closest to target within
// the search window, or target when none qualifies.
func (f *SilenceCutFinder) FindCutNear(ctx context.Context, target float64) (float64, error) {
	f.once.Do(func() {
		f.silences, f.err = f.detect(ctx)
	})
	if f.err != nil {
		return target, f.err
	}
	return NearestSilence(f.silences, target, f.opts.SearchWindow), nil
}

func (f *SilenceCutFinder) detect(ctx context.Context) ([]Silence, error) {
	filter := fmt.Sprintf("silencedetect=noise=%sdB:d=%s",
		strconv.FormatFloat(f.opts.NoiseDB, 'f', -1, 64),
		strconv.FormatFloat(f.opts.MinSeconds, 'f', -1, 64),
	)
	args := []string{"-hide_banner", "-nostats", "-i", f.path, "-map", "0:a:0", "-af", filter, "-f", "null", "-"}
	output, err := f.run(ctx, f.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("silencedetect: %w", err)
	}
	silences := ParseSilenceDetect(output, f.duration)
	f.logger.Debug("silence detected",
		logging.Int("intervals", len(silences)),
		logging.String("path", f.path),
	)
	return silences, nil
}

// NearestSilence returns the midpoint of the silence whose midpoint is closest
// to target and within window seconds of it, or target when there is none.
func NearestSilence(silences []Silence, target, window float64) float64 {
	best := target
	bestDistance := math.Inf(1)
	for _, s := range silences {
		mid := s.Midpoint()
		distance := math.Abs(mid - target)
		if distance > window {
			continue
		}
		if distance < bestDistance {
			best = mid
			bestDistance = distance
		}
	}
	return best
}

// ParseSilenceDetect extracts silence intervals from ffmpeg silencedetect
// output. An unterminated trailing silence ends at duration.
func ParseSilenceDetect(output []byte, duration float64) []Silence {
	var silences []Silence
	openStart := math.NaN()
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "silencedetect") {
			continue
		}
		if value, ok := fieldAfter(line, "silence_start:"); ok {
			openStart = math.Max(value, 0)
			continue
		}
		if value, ok := fieldAfter(line, "silence_end:"); ok && !math.IsNaN(openStart) {
			silences = appendSilence(silences, openStart, value, duration)
			openStart = math.NaN()
		}
	}
	if !math.IsNaN(openStart) {
		silences = appendSilence(silences, openStart, duration, duration)
	}
	sort.Slice(silences, func(i, j int) bool { return silences[i].Start < silences[j].Start })
	return silences
}

func appendSilence(silences []Silence, start, end, duration float64) []Silence {
	if duration > 0 {
		if start >= duration {
			return silences
		}
		end = math.Min(end, duration)
	}
	if end <= start {
		return silences
	}
	return append(silences, Silence{Start: start, End: end})
}

func fieldAfter(line, key string) (float64, bool) {
	idx := strings.Index(line, key)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len(key):])
	if cut := strings.IndexAny(rest, " |"); cut >= 0 {
		rest = rest[:cut]
	}
	value, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
