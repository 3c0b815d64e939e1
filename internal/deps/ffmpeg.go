package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

const probeTimeout = 10 * time.Second

// FFmpegVersion runs "<binary> -version" and returns the reported version.
func FFmpegVersion(ctx context.Context, run Runner, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := run(ctx, binary, "-hide_banner", "-version")
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", binary, err)
	}
	version := ParseVersion(out)
	if version == "" {
		return "", fmt.Errorf("%s -version: unrecognized output", binary)
	}
	return version, nil
}

// ParseVersion extracts the version token from ffmpeg/ffprobe -version
// output, e.g. "6.1.1" from "ffmpeg version 6.1.1-3ubuntu5 Copyright ...".
func ParseVersion(output []byte) string {
	line, _, _ := bytes.Cut(output, []byte("\n"))
	fields := strings.Fields(string(line))
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "version" {
			version := fields[i+1]
			if cut, _, ok := strings.Cut(version, "-"); ok && cut != "" {
				version = cut
			}
			return version
		}
	}
	return ""
}

// CheckEncoder reports whether ffmpeg was built with the named audio encoder.
func CheckEncoder(ctx context.Context, run Runner, binary, encoder string) Status {
	status := Status{
		Name:        "ffmpeg " + encoder,
		Command:     binary,
		Description: "Encodes speech segments",
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := run(ctx, binary, "-hide_banner", "-encoders")
	if err != nil {
		status.Detail = fmt.Sprintf("cannot list encoders: %v", err)
		return status
	}
	if !HasEncoder(out, encoder) {
		status.Detail = fmt.Sprintf("encoder %q not compiled into %s", encoder, binary)
		return status
	}
	status.Available = true
	return status
}

// HasEncoder scans "ffmpeg -encoders" output for an encoder name. Lines look
// like " A....D libvorbis            libvorbis".
func HasEncoder(output []byte, encoder string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == encoder && strings.HasPrefix(fields[0], "A") {
			return true
		}
	}
	return false
}
