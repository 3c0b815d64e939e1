package deps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Resolved != present || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %s", results[2].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc", "6.1.1"},
		{"ffprobe version n7.0 Copyright (c) 2007-2024", "n7.0"},
		{"ffmpeg version N-113000-g1234 Copyright", "N"},
		{"garbage", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseVersion([]byte(tt.output)); got != tt.want {
			t.Fatalf("ParseVersion(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}

func TestFFmpegVersion(t *testing.T) {
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffmpeg" || args[len(args)-1] != "-version" {
			t.Fatalf("unexpected command %s %v", name, args)
		}
		return []byte("ffmpeg version 7.1 Copyright"), nil
	}
	version, err := FFmpegVersion(context.Background(), run, "ffmpeg")
	if err != nil || version != "7.1" {
		t.Fatalf("FFmpegVersion = %q, %v", version, err)
	}

	failing := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	if _, err := FFmpegVersion(context.Background(), failing, "ffmpeg"); err == nil {
		t.Fatal("expected error from failing runner")
	}
}

func TestCheckEncoder(t *testing.T) {
	listing := []byte(`Encoders:
 V..... = Video
 ------
 V....D libx264              libx264 H.264 / AVC
 A....D libvorbis            libvorbis
 A....D aac                  AAC (Advanced Audio Coding)
`)
	run := func(context.Context, string, ...string) ([]byte, error) { return listing, nil }

	if status := CheckEncoder(context.Background(), run, "ffmpeg", "libvorbis"); !status.Available {
		t.Fatalf("expected libvorbis available, got %#v", status)
	}
	if status := CheckEncoder(context.Background(), run, "ffmpeg", "libx264"); status.Available {
		t.Fatal("video encoder must not satisfy an audio encoder check")
	}
	if status := CheckEncoder(context.Background(), run, "ffmpeg", "libopus"); status.Available || status.Detail == "" {
		t.Fatalf("expected missing encoder detail, got %#v", status)
	}
}
