package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"chunkscribe/internal/media/ffprobe"
	"chunkscribe/internal/services"
)

func TestBuildEncodeArgsRange(t *testing.T) {
	args := BuildEncodeArgs("in.mp4", 600, 12.5, "32k", "out.ogg")
	for _, want := range [][]string{
		{"-ss", "600.000"},
		{"-t", "12.500"},
		{"-ac", "1"},
		{"-ar", "16000"},
		{"-c:a", "libvorbis"},
		{"-b:a", "32k"},
	} {
		idx := slices.Index(args, want[0])
		if idx < 0 || idx+1 >= len(args) || args[idx+1] != want[1] {
			t.Fatalf("expected %s %s in %v", want[0], want[1], args)
		}
	}
	if args[len(args)-1] != "out.ogg" {
		t.Fatalf("expected destination last, got %v", args)
	}
	if slices.Index(args, "-ss") > slices.Index(args, "-i") {
		t.Fatalf("expected input seek before -i: %v", args)
	}
}

func TestBuildEncodeArgsWholeFile(t *testing.T) {
	args := BuildEncodeArgs("in.mp4", -1, -1, "32k", "out.ogg")
	if slices.Contains(args, "-ss") || slices.Contains(args, "-t") {
		t.Fatalf("expected no range flags, got %v", args)
	}
}

func TestEncodeRangeWritesOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "seg.ogg")
	var gotName string
	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		return nil, os.WriteFile(args[len(args)-1], []byte("OggS"), 0o644)
	}
	enc := NewEncoder("/usr/bin/ffmpeg", "", runner)
	if err := enc.EncodeRange(context.Background(), "in.mp3", 0, 10, dest); err != nil {
		t.Fatalf("EncodeRange returned error: %v", err)
	}
	if gotName != "/usr/bin/ffmpeg" {
		t.Fatalf("unexpected binary %q", gotName)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected output: %v", err)
	}
}

func TestEncodeFailureIsEncodingFailed(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "seg.ogg")
	runner := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
		return []byte("Conversion failed!"), errors.New("exit status 1")
	}
	err := NewEncoder("", "", runner).EncodeFile(context.Background(), "in.mp3", dest)
	if !errors.Is(err, services.ErrEncodingFailed) {
		t.Fatalf("expected ErrEncodingFailed, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial output removed, stat err=%v", statErr)
	}
}

func TestEncodeEmptyOutputFails(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "seg.ogg")
	runner := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], nil, 0o644)
	}
	err := NewEncoder("", "", runner).EncodeRange(context.Background(), "in.mp3", 1, 2, dest)
	if !errors.Is(err, services.ErrEncodingFailed) {
		t.Fatalf("expected ErrEncodingFailed, got %v", err)
	}
}

func TestEncodeRangeRejectsEmptyRange(t *testing.T) {
	err := NewEncoder("", "", func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner should not be called")
		return nil, nil
	}).EncodeRange(context.Background(), "in.mp3", 5, 5, "out.ogg")
	if !errors.Is(err, services.ErrEncodingFailed) {
		t.Fatalf("expected ErrEncodingFailed, got %v", err)
	}
}

func TestOptimizeProbesIntermediate(t *testing.T) {
	workDir := t.TempDir()
	runner := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], make([]byte, 800), 0o644)
	}
	stubInspect(t, ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: "vorbis", SampleRate: "16000", Channels: 1}},
		Format:  ffprobe.Format{Duration: "200"},
	}, nil)

	source := File{Path: "/media/long.mkv", SizeBytes: 1 << 30, DurationSeconds: 200}
	got, err := Optimize(context.Background(), NewEncoder("", "", runner), NewProber("", nil), source, workDir)
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if got.Path != filepath.Join(workDir, OptimizedName) {
		t.Fatalf("unexpected path %q", got.Path)
	}
	if got.SizeBytes != 800 || got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("unexpected optimized file: %+v", got)
	}
}
