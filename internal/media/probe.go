package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"chunkscribe/internal/language"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/media/ffprobe"
	"chunkscribe/internal/services"
)

// SplitThresholdRatio is the fraction of the byte limit above which a file is split.
const SplitThresholdRatio = 0.8

var inspectMedia = ffprobe.Inspect

// File describes a probed input. It is not modified after Probe returns.
type File struct {
	Path            string
	DurationSeconds float64
	SizeBytes       int64
	BitRate         int64
	FormatName      string
	AudioCodec      string
	SampleRate      int
	Channels        int
	AudioStreams    int
	HasVideo        bool
	// Language is the ISO 639-1 code tagged on the first audio stream, if any.
	Language string
}

// BytesPerSecond returns the average encoded byte rate.
func (f File) BytesPerSecond() float64 {
	if f.DurationSeconds <= 0 {
		return 0
	}
	return float64(f.SizeBytes) / f.DurationSeconds
}

// Prober inspects media files with ffprobe.
type Prober struct {
	binary string
	logger *slog.Logger
}

// NewProber constructs a Prober using the given ffprobe binary.
func NewProber(ffprobeBinary string, logger *slog.Logger) *Prober {
	return &Prober{
		binary: strings.TrimSpace(ffprobeBinary),
		logger: logging.NewComponentLogger(logger, "probe"),
	}
}

// Probe reads container metadata for path. It fails with ErrUnreadableMedia
// when the file cannot be opened, carries no audio, or reports no duration.
func (p *Prober) Probe(ctx context.Context, path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, services.Wrap(services.ErrUnreadableMedia, "probing", "stat", "cannot open input", err)
	}
	if info.IsDir() {
		return File{}, services.Wrap(services.ErrUnreadableMedia, "probing", "stat", fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() == 0 {
		return File{}, services.Wrap(services.ErrUnreadableMedia, "probing", "stat", "input is empty", nil)
	}

	result, err := inspectMedia(ctx, p.binary, path)
	if err != nil {
		if ctx.Err() != nil {
			return File{}, ctx.Err()
		}
		return File{}, services.Wrap(services.ErrUnreadableMedia, "probing", "ffprobe", "cannot read container metadata", err)
	}

	audio, ok := result.FirstAudioStream()
	if !ok {
		return File{}, services.Wrap(services.ErrUnreadableMedia, "probing", "ffprobe", "no audio stream", nil)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return File{}, services.Wrap(services.ErrUnreadableMedia, "probing", "ffprobe", "zero or unknown duration", nil)
	}

	file := File{
		Path:            path,
		DurationSeconds: duration,
		SizeBytes:       info.Size(),
		BitRate:         result.BitRate(),
		FormatName:      result.Format.FormatName,
		AudioCodec:      audio.CodecName,
		SampleRate:      audio.SampleRateHz(),
		Channels:        audio.Channels,
		AudioStreams:    result.AudioStreamCount(),
		HasVideo:        result.VideoStreamCount() > 0,
		Language:        language.ExtractFromTags(audio.Tags),
	}
	if file.BitRate == 0 {
		file.BitRate = int64(float64(file.SizeBytes) * 8 / duration)
	}

	p.logger.Debug("media probed",
		logging.String("path", path),
		logging.Float64("duration_seconds", file.DurationSeconds),
		logging.Int64("size_bytes", file.SizeBytes),
		logging.String("audio_codec", file.AudioCodec),
		logging.Bool("has_video", file.HasVideo),
		logging.String("language", file.Language),
	)
	return file, nil
}

// NeedsSplitting reports whether file exceeds SplitThresholdRatio of byteLimit.
func NeedsSplitting(file File, byteLimit int64) bool {
	return NeedsSplittingAt(file, byteLimit, SplitThresholdRatio)
}

// NeedsSplittingAt is NeedsSplitting with an explicit threshold ratio.
func NeedsSplittingAt(file File, byteLimit int64, ratio float64) bool {
	if ratio <= 0 || ratio > 1 {
		ratio = SplitThresholdRatio
	}
	threshold := int64(float64(byteLimit) * ratio)
	return file.SizeBytes > threshold
}
