package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerNilLogsEverything(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(1, 10) {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	var emitted []int
	for completed := 0; completed <= 8; completed++ {
		if s.ShouldLog(completed, 8) {
			emitted = append(emitted, completed)
		}
	}
	want := []int{0, 2, 4, 6, 8}
	if len(emitted) != len(want) {
		t.Fatalf("emitted = %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted = %v, want %v", emitted, want)
		}
	}
}

func TestProgressSamplerCompletionAlwaysLogsOnce(t *testing.T) {
	s := NewProgressSampler(50)
	if !s.ShouldLog(3, 3) {
		t.Fatal("expected completion to log")
	}
	if s.ShouldLog(3, 3) {
		t.Fatal("expected repeated completion to be suppressed")
	}
}

func TestProgressSamplerTotalChangeResets(t *testing.T) {
	s := NewProgressSampler(50)
	s.ShouldLog(1, 2)
	if !s.ShouldLog(1, 4) {
		t.Fatal("expected new total to reset buckets")
	}
	s.Reset()
	if !s.ShouldLog(0, 4) {
		t.Fatal("expected reset sampler to log first event")
	}
}
