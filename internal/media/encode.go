package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"chunkscribe/internal/services"
)

const (
	// SpeechSampleRate is the sample rate of every encoded segment.
	SpeechSampleRate = 16000
	// SpeechChannels is the channel count of every encoded segment.
	SpeechChannels = 1
	// SpeechExtension is the file extension of encoded segments.
	SpeechExtension = ".ogg"
	// DefaultSpeechBitrate is the Vorbis bitrate used when none is configured.
	DefaultSpeechBitrate = "32k"
	// AudioEncoder is the ffmpeg encoder every segment is written with.
	AudioEncoder = "libvorbis"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Encoder re-encodes media into speech-optimized Ogg Vorbis with ffmpeg.
type Encoder struct {
	binary  string
	bitrate string
	run     Runner
}

// NewEncoder constructs an Encoder. A nil runner uses ExecRunner.
func NewEncoder(ffmpegBinary, bitrate string, run Runner) *Encoder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(bitrate) == "" {
		bitrate = DefaultSpeechBitrate
	}
	if run == nil {
		run = ExecRunner
	}
	return &Encoder{binary: ffmpegBinary, bitrate: bitrate, run: run}
}

// Binary returns the ffmpeg executable the encoder invokes.
func (e *Encoder) Binary() string {
	return e.binary
}

// Run executes ffmpeg with arbitrary arguments through the encoder's runner.
func (e *Encoder) Run(ctx context.Context, args ...string) ([]byte, error) {
	return e.run(ctx, e.binary, args...)
}

// EncodeFile re-encodes the whole source into dest.
func (e *Encoder) EncodeFile(ctx context.Context, source, dest string) error {
	return e.encode(ctx, source, -1, -1, dest)
}

// EncodeRange re-encodes [start, end) of source into dest.
func (e *Encoder) EncodeRange(ctx context.Context, source string, start, end float64, dest string) error {
	if end <= start {
		return services.Wrap(services.ErrEncodingFailed, "extracting", "ffmpeg", fmt.Sprintf("invalid range %.3f-%.3f", start, end), nil)
	}
	return e.encode(ctx, source, start, end-start, dest)
}

func (e *Encoder) encode(ctx context.Context, source string, start, duration float64, dest string) error {
	args := BuildEncodeArgs(source, start, duration, e.bitrate, dest)
	output, err := e.run(ctx, e.binary, args...)
	if err != nil {
		_ = os.Remove(dest)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = "ffmpeg failed"
		}
		return services.Wrap(services.ErrEncodingFailed, "extracting", "ffmpeg", detail, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return services.Wrap(services.ErrEncodingFailed, "extracting", "ffmpeg", "encoded file missing", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(dest)
		return services.Wrap(services.ErrEncodingFailed, "extracting", "ffmpeg", "encoded file is empty", errors.New("zero bytes written"))
	}
	return nil
}

// BuildEncodeArgs returns the ffmpeg arguments for a speech encode. Negative
// start or duration encodes the whole input.
func BuildEncodeArgs(source string, start, duration float64, bitrate, dest string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if start >= 0 && duration > 0 {
		args = append(args,
			"-ss", formatSeconds(start),
			"-t", formatSeconds(duration),
		)
	}
	args = append(args,
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", strconv.Itoa(SpeechChannels),
		"-ar", strconv.Itoa(SpeechSampleRate),
		"-c:a", AudioEncoder,
		"-b:a", bitrate,
		"-f", "ogg",
		dest,
	)
	return args
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
