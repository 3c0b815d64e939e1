package history

import "time"

// Run is the persisted summary of one pipeline run.
type Run struct {
	ID                string
	Source            string
	State             string
	Model             string
	TotalSegments     int
	CompletedSegments int
	Error             string
	ErrorClass        string
	TranscriptPath    string
	SubtitlePath      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	FinishedAt        time.Time
}

// Finished reports whether the run reached a terminal state.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Elapsed returns how long the run took, or has taken so far.
func (r Run) Elapsed(now time.Time) time.Duration {
	end := r.FinishedAt
	if end.IsZero() {
		end = now
	}
	if r.CreatedAt.IsZero() || end.Before(r.CreatedAt) {
		return 0
	}
	return end.Sub(r.CreatedAt)
}
