package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"chunkscribe/internal/logging"
	"chunkscribe/internal/media"
	"chunkscribe/internal/services"
)

const (
	// DefaultSafetyRatio is the fraction of the byte limit each planned segment targets.
	DefaultSafetyRatio = 0.9
	// DefaultSearchWindow bounds how far a cut may move toward silence, in seconds.
	DefaultSearchWindow = 3.0
	// DefaultMinSegmentSeconds is the shortest range bisection will produce.
	DefaultMinSegmentSeconds = 1.0
)

// Segment is one contiguous time range of the source, in seconds.
type Segment struct {
	Index int
	Start float64
	End   float64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Plan is an ordered, gapless partition of [0, Duration].
type Plan struct {
	Segments  []Segment
	Duration  float64
	ByteLimit int64
}

// Len returns the number of segments.
func (p Plan) Len() int {
	return len(p.Segments)
}

// Validate checks the coverage invariants: the first segment starts at 0,
// each segment ends where the next starts, the last ends at Duration, and
// indices are contiguous from 0.
func (p Plan) Validate() error {
	if len(p.Segments) == 0 {
		return errors.New("plan has no segments")
	}
	if p.Segments[0].Start != 0 {
		return fmt.Errorf("plan starts at %.3f, want 0", p.Segments[0].Start)
	}
	for i, seg := range p.Segments {
		if seg.Index != i {
			return fmt.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.End <= seg.Start {
			return fmt.Errorf("segment %d is empty (%.3f-%.3f)", i, seg.Start, seg.End)
		}
		if i > 0 && p.Segments[i-1].End != seg.Start {
			return fmt.Errorf("gap or overlap between segments %d and %d", i-1, i)
		}
	}
	if last := p.Segments[len(p.Segments)-1]; last.End != p.Duration {
		return fmt.Errorf("plan ends at %.3f, want %.3f", last.End, p.Duration)
	}
	return nil
}

// Options tunes planning and extraction.
type Options struct {
	SafetyRatio       float64
	SplitThreshold    float64
	MinSegmentSeconds float64
}

func (o Options) withDefaults() Options {
	if o.SafetyRatio <= 0 || o.SafetyRatio > 1 {
		o.SafetyRatio = DefaultSafetyRatio
	}
	if o.SplitThreshold <= 0 || o.SplitThreshold > 1 {
		o.SplitThreshold = media.SplitThresholdRatio
	}
	if o.MinSegmentSeconds <= 0 {
		o.MinSegmentSeconds = DefaultMinSegmentSeconds
	}
	return o
}

// Planner computes segment plans.
type Planner struct {
	opts   Options
	cuts   CutStrategy
	logger *slog.Logger
}

// NewPlanner constructs a Planner. A nil strategy cuts at exact targets.
func NewPlanner(opts Options, cuts CutStrategy, logger *slog.Logger) *Planner {
	if cuts == nil {
		cuts = FixedCuts
	}
	return &Planner{
		opts:   opts.withDefaults(),
		cuts:   cuts,
		logger: logging.NewComponentLogger(logger, "planner"),
	}
}

// Plan partitions file into segments whose projected size stays under
// SafetyRatio of byteLimit. The estimate assumes a constant bitrate; the
// Segmenter bisects whatever the estimate gets wrong.
func (p *Planner) Plan(ctx context.Context, file media.File, byteLimit int64) (Plan, error) {
	duration := file.DurationSeconds
	if duration <= 0 || math.IsNaN(duration) {
		return Plan{}, services.Wrap(services.ErrUnreadableMedia, "planning", "plan", "media has no duration", nil)
	}
	if byteLimit <= 0 {
		return Plan{}, services.Wrap(services.ErrConfiguration, "planning", "plan", "byte limit must be positive", nil)
	}
	plan := Plan{Duration: duration, ByteLimit: byteLimit}

	if !media.NeedsSplittingAt(file, byteLimit, p.opts.SplitThreshold) {
		plan.Segments = []Segment{{Index: 0, Start: 0, End: duration}}
		p.logger.Debug("no split needed",
			logging.Int64("size_bytes", file.SizeBytes),
			logging.Int64("byte_limit", byteLimit),
		)
		return plan, nil
	}

	bytesPerSecond := file.BytesPerSecond()
	step := float64(byteLimit) * p.opts.SafetyRatio / bytesPerSecond
	if step < p.opts.MinSegmentSeconds {
		step = p.opts.MinSegmentSeconds
	}
	count := int(math.Ceil(duration / step))
	if count < 1 {
		count = 1
	}
	// A tail shorter than MinSegmentSeconds joins the previous segment when
	// that still fits the limit; otherwise the duration is spread evenly.
	if count > 1 {
		if tail := duration - float64(count-1)*step; tail < p.opts.MinSegmentSeconds {
			if (step+tail)*bytesPerSecond <= float64(byteLimit) {
				count--
			} else {
				step = duration / float64(count)
			}
		}
	}

	finder := p.cuts(file)
	cuts := make([]float64, 0, count+1)
	cuts = append(cuts, 0)
	for i := 1; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}
		target := float64(i) * step
		if target >= duration {
			break
		}
		next := math.Min(float64(i+1)*step, duration)
		if i+1 == count {
			next = duration
		}
		cut := p.chooseCut(ctx, finder, target, cuts[len(cuts)-1], next, bytesPerSecond, byteLimit)
		cuts = append(cuts, cut)
	}
	cuts = append(cuts, duration)

	plan.Segments = make([]Segment, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		plan.Segments = append(plan.Segments, Segment{Index: i, Start: cuts[i], End: cuts[i+1]})
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, services.Wrap(services.ErrValidation, "planning", "plan", "invalid plan", err)
	}
	p.logger.Info("segment plan ready",
		logging.Int("segments", plan.Len()),
		logging.Float64("target_seconds", step),
		logging.Float64("duration_seconds", duration),
		logging.Int64("byte_limit", byteLimit),
	)
	return plan, nil
}

// chooseCut asks the finder for a cut near target and keeps it only when it
// stays strictly between its neighbours and neither adjacent segment's
// projected size exceeds the limit.
func (p *Planner) chooseCut(ctx context.Context, finder CutFinder, target, prev, next, bytesPerSecond float64, byteLimit int64) float64 {
	cut, err := finder.FindCutNear(ctx, target)
	if err != nil {
		logging.WarnWithContext(p.logger, "cut finder failed; cutting at target", "cut_finder_failed",
			logging.Float64("target", target),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg silencedetect support"),
			logging.String(logging.FieldImpact, "segment boundary may fall mid-word"),
		)
		return target
	}
	if cut == target {
		return target
	}
	limit := float64(byteLimit)
	switch {
	case cut <= prev+p.opts.MinSegmentSeconds, cut >= next-p.opts.MinSegmentSeconds:
		return target
	case (cut-prev)*bytesPerSecond > limit, (next-cut)*bytesPerSecond > limit:
		return target
	}
	p.logger.Debug("cut moved to silence",
		logging.Float64("target", target),
		logging.Float64("cut", cut),
	)
	return cut
}
