package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"chunkscribe/internal/deps"
	"chunkscribe/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("FFmpeg", statusError, "not found", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "FFmpeg:", "[ERROR] not found")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("FFmpeg", statusOK, "/usr/bin/ffmpeg", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyStatusLine(t *testing.T) {
	tests := []struct {
		name   string
		status deps.Status
		want   string
	}{
		{"available", deps.Status{Name: "FFmpeg", Available: true, Resolved: "/usr/bin/ffmpeg"}, "[OK] /usr/bin/ffmpeg"},
		{"available without path", deps.Status{Name: "libvorbis", Available: true}, "[OK] available"},
		{"missing required", deps.Status{Name: "FFprobe", Detail: "binary \"ffprobe\" not found"}, "[ERROR] binary"},
		{"missing optional", deps.Status{Name: "Extra", Optional: true, Detail: "command not configured"}, "[WARN] command not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := dependencyStatusLine(tt.status, false)
			if !strings.Contains(line, tt.want) {
				t.Fatalf("line %q missing %q", line, tt.want)
			}
		})
	}
}

func TestPreflightStatusLine(t *testing.T) {
	if line := preflightStatusLine(preflight.Result{Name: "Work directory", Passed: true, Detail: "/tmp"}, false); !strings.Contains(line, "[OK] /tmp") {
		t.Fatalf("unexpected passed line %q", line)
	}
	if line := preflightStatusLine(preflight.Result{Name: "Work directory", Detail: "not writable"}, false); !strings.Contains(line, "[ERROR] not writable") {
		t.Fatalf("unexpected failed line %q", line)
	}
}

func TestRenderSectionHeader(t *testing.T) {
	lines := renderSectionHeader(" Dependencies ", false)
	if len(lines) != 2 || lines[0] != "== Dependencies ==" || lines[1] != strings.Repeat("-", len(lines[0])) {
		t.Fatalf("unexpected header %q", lines)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
