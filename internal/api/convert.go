package api

import (
	"time"

	"chunkscribe/internal/deps"
	"chunkscribe/internal/history"
)

// FromHistoryRun converts a persisted run to its transport form.
func FromHistoryRun(run *history.Run) Run {
	if run == nil {
		return Run{}
	}
	return Run{
		ID:                run.ID,
		Source:            run.Source,
		State:             run.State,
		Model:             run.Model,
		CompletedSegments: run.CompletedSegments,
		TotalSegments:     run.TotalSegments,
		Error:             run.Error,
		ErrorClass:        run.ErrorClass,
		TranscriptPath:    run.TranscriptPath,
		SubtitlePath:      run.SubtitlePath,
		CreatedAt:         formatTime(run.CreatedAt),
		UpdatedAt:         formatTime(run.UpdatedAt),
		FinishedAt:        formatTime(run.FinishedAt),
	}
}

// FromHistoryRuns converts a slice of persisted runs.
func FromHistoryRuns(runs []*history.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		if run == nil {
			continue
		}
		out = append(out, FromHistoryRun(run))
	}
	return out
}

// FromDependencyStatuses converts binary checks for the health payload.
func FromDependencyStatuses(statuses []deps.Status) []DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
