package logging

// ProgressSampler suppresses repetitive segment progress logs, emitting only
// when completion crosses a percentage bucket or the segment total changes.
type ProgressSampler struct {
	bucketSize float64
	lastTotal  int
	lastBucket int
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent. Non-positive widths fall back to 10%.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether completed-of-total progress is worth a log line.
// A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(completed, total int) bool {
	if s == nil {
		return true
	}
	if total <= 0 {
		return false
	}
	if total != s.lastTotal {
		s.lastTotal = total
		s.lastBucket = -1
	}
	if completed > total {
		completed = total
	}
	percent := float64(completed) / float64(total) * 100
	bucket := int(percent / s.bucketSize)
	if completed == total {
		bucket = int(100/s.bucketSize) + 1
	}
	if bucket <= s.lastBucket {
		return false
	}
	s.lastBucket = bucket
	return true
}

// Reset clears the sampler state when a new run starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastTotal = 0
	s.lastBucket = -1
}
