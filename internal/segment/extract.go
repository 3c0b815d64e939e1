package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"chunkscribe/internal/logging"
	"chunkscribe/internal/media"
	"chunkscribe/internal/services"
)

// Extractor re-encodes a time range of a source file into dest.
type Extractor interface {
	EncodeRange(ctx context.Context, source string, start, end float64, dest string) error
}

// Audio is an extracted segment ready for submission. The worker holding an
// Audio owns its file until Release.
type Audio struct {
	Segment Segment
	Path    string
	Size    int64
}

// Segmenter extracts planned segments into a work directory.
type Segmenter struct {
	workDir    string
	extractor  Extractor
	byteLimit  int64
	minSeconds float64
	logger     *slog.Logger
}

// NewSegmenter constructs a Segmenter writing into workDir, creating it when missing.
func NewSegmenter(workDir string, extractor Extractor, byteLimit int64, opts Options, logger *slog.Logger) (*Segmenter, error) {
	if extractor == nil {
		return nil, errors.New("segmenter: extractor is required")
	}
	if byteLimit <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "extracting", "segmenter", "byte limit must be positive", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("segmenter: create work dir: %w", err)
	}
	opts = opts.withDefaults()
	return &Segmenter{
		workDir:    workDir,
		extractor:  extractor,
		byteLimit:  byteLimit,
		minSeconds: opts.MinSegmentSeconds,
		logger:     logging.NewComponentLogger(logger, "segmenter"),
	}, nil
}

// WorkDir returns the directory segment files are written to.
func (s *Segmenter) WorkDir() string {
	return s.workDir
}

// Extract re-encodes seg into its own file without checking its size.
func (s *Segmenter) Extract(ctx context.Context, file media.File, seg Segment) (Audio, error) {
	dest := filepath.Join(s.workDir, segmentFileName(seg))
	if err := s.extractor.EncodeRange(ctx, file.Path, seg.Start, seg.End, dest); err != nil {
		_ = os.Remove(dest)
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		return Audio{}, &services.SegmentError{Index: seg.Index, Start: seg.Start, End: seg.End, Err: err}
	}
	info, err := os.Stat(dest)
	if err != nil {
		return Audio{}, &services.SegmentError{
			Index: seg.Index, Start: seg.Start, End: seg.End,
			Err: services.Wrap(services.ErrEncodingFailed, "extracting", "stat", "segment file missing", err),
		}
	}
	return Audio{Segment: seg, Path: dest, Size: info.Size()}, nil
}

// ExtractFitting extracts seg and bisects it until every piece fits the byte
// limit. Pieces are returned in time order and keep seg's index; callers
// re-index. On error no files from this call remain.
func (s *Segmenter) ExtractFitting(ctx context.Context, file media.File, seg Segment) ([]Audio, error) {
	audio, err := s.Extract(ctx, file, seg)
	if err != nil {
		return nil, err
	}
	if audio.Size <= s.byteLimit {
		return []Audio{audio}, nil
	}
	_ = s.Release(audio)

	half := seg.Duration() / 2
	if half < s.minSeconds {
		return nil, &services.SegmentError{
			Index: seg.Index, Start: seg.Start, End: seg.End,
			Err: services.Wrap(services.ErrSegmentTooLarge, "extracting", "bisect",
				fmt.Sprintf("%d bytes exceeds limit %d", audio.Size, s.byteLimit), nil),
		}
	}
	mid := seg.Start + half
	s.logger.Info("segment over byte limit; bisecting",
		logging.Int(logging.FieldSegmentIndex, seg.Index),
		logging.Float64("start", seg.Start),
		logging.Float64("end", seg.End),
		logging.Int64("size_bytes", audio.Size),
		logging.Int64("byte_limit", s.byteLimit),
	)

	left, err := s.ExtractFitting(ctx, file, Segment{Index: seg.Index, Start: seg.Start, End: mid})
	if err != nil {
		return nil, err
	}
	right, err := s.ExtractFitting(ctx, file, Segment{Index: seg.Index, Start: mid, End: seg.End})
	if err != nil {
		s.ReleaseAll(left)
		return nil, err
	}
	return append(left, right...), nil
}

// Stream extracts every planned segment in order and passes each fitting
// piece to emit with its final contiguous index. Ownership of an emitted
// Audio moves to emit's receiver. It returns the re-indexed plan covering
// exactly the emitted pieces.
func (s *Segmenter) Stream(ctx context.Context, file media.File, plan Plan, emit func(Audio) error) (Plan, error) {
	final := Plan{Duration: plan.Duration, ByteLimit: s.byteLimit}
	for _, seg := range plan.Segments {
		if err := ctx.Err(); err != nil {
			return final, err
		}
		pieces, err := s.ExtractFitting(ctx, file, seg)
		if err != nil {
			return final, err
		}
		for i, piece := range pieces {
			piece.Segment.Index = len(final.Segments)
			if err := emit(piece); err != nil {
				s.ReleaseAll(pieces[i:])
				return final, err
			}
			final.Segments = append(final.Segments, piece.Segment)
		}
	}
	return final, nil
}

// Prepare extracts the whole plan and returns every piece. On failure all
// files it produced are removed.
func (s *Segmenter) Prepare(ctx context.Context, file media.File, plan Plan) ([]Audio, Plan, error) {
	var out []Audio
	final, err := s.Stream(ctx, file, plan, func(a Audio) error {
		out = append(out, a)
		return nil
	})
	if err != nil {
		s.ReleaseAll(out)
		return nil, Plan{}, err
	}
	return out, final, nil
}

// Release deletes one segment file. A missing file is not an error.
func (s *Segmenter) Release(audio Audio) error {
	if audio.Path == "" {
		return nil
	}
	if err := os.Remove(audio.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release segment %d: %w", audio.Segment.Index, err)
	}
	return nil
}

// ReleaseAll deletes every file in audios, logging failures.
func (s *Segmenter) ReleaseAll(audios []Audio) {
	for _, audio := range audios {
		if err := s.Release(audio); err != nil {
			s.logger.Warn("segment release failed", logging.Error(err))
		}
	}
}

// Cleanup removes the work directory and everything in it.
func (s *Segmenter) Cleanup() error {
	if err := os.RemoveAll(s.workDir); err != nil {
		return fmt.Errorf("segmenter: remove work dir: %w", err)
	}
	return nil
}

func segmentFileName(seg Segment) string {
	return fmt.Sprintf("segment-%010d-%010d%s",
		int64(seg.Start*1000), int64(seg.End*1000), media.SpeechExtension)
}
