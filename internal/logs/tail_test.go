package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chunkscribe/internal/logs"
)

func TestLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkscribe.log")
	if err := os.WriteFile(path, []byte("a run_id=1\nb run_id=2\nc run_id=1\npartial"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	tests := []struct {
		name   string
		n      int
		filter logs.Filter
		want   []string
	}{
		{"last two", 2, nil, []string{"b run_id=2", "c run_id=1"}},
		{"more than available", 10, nil, []string{"a run_id=1", "b run_id=2", "c run_id=1"}},
		{"filtered", 5, logs.Containing("run_id=1"), []string{"a run_id=1", "c run_id=1"}},
		{"zero", 0, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, offset, err := logs.Last(path, tt.n, tt.filter)
			if err != nil {
				t.Fatalf("Last returned error: %v", err)
			}
			if len(lines) != len(tt.want) {
				t.Fatalf("lines = %#v, want %#v", lines, tt.want)
			}
			for i := range lines {
				if lines[i] != tt.want[i] {
					t.Fatalf("lines = %#v, want %#v", lines, tt.want)
				}
			}
			if offset != int64(len("a run_id=1\nb run_id=2\nc run_id=1\n")) {
				t.Fatalf("offset = %d, want end of last complete line", offset)
			}
		})
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "missing.log"), 5, nil)
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("unexpected result: %#v %d %v", lines, offset, err)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkscribe.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Last(path, 1, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, logs.Containing("keep"), func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("keep one\ndrop\nkeep two\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "keep one" || got[1] != "keep two" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}

func TestFollowRestartsAfterTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkscribe.log")
	if err := os.WriteFile(path, []byte("old line that is long\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	_, offset, err := logs.Last(path, 0, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("truncate log: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var got []string
	if err := logs.Follow(ctx, path, offset, 10*time.Millisecond, nil, func(line string) {
		got = append(got, line)
	}); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("unexpected lines after truncate: %#v", got)
	}
}
