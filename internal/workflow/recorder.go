package workflow

import (
	"context"
	"log/slog"

	"chunkscribe/internal/history"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/reassembly"
	"chunkscribe/internal/services"
)

// History writes are best effort: a broken store is logged and never fails
// the run.

func (p *Pipeline) recordStart(ctx context.Context, source string, opts Options, logger *slog.Logger) {
	if p.deps.History == nil {
		return
	}
	_, err := p.deps.History.Create(context.WithoutCancel(ctx), history.Run{
		ID:     p.id,
		Source: source,
		State:  string(StateIdle),
		Model:  opts.Model,
	})
	if err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_write",
			logging.String(logging.FieldImpact, "run will be missing from history"),
			logging.Error(err),
		)
	}
}

func (p *Pipeline) recordProgress(ctx context.Context, ev Event) {
	if p.deps.History == nil {
		return
	}
	err := p.deps.History.UpdateProgress(context.WithoutCancel(ctx), ev.RunID, string(ev.State), ev.CompletedSegments, ev.TotalSegments)
	if err != nil {
		p.logger.Debug("history progress update failed", logging.Error(err))
	}
}

func (p *Pipeline) recordFinish(ctx context.Context, source string, ev Event, outputs reassembly.Outputs, runErr error, logger *slog.Logger) {
	if p.deps.History == nil {
		return
	}
	run := history.Run{
		ID:                ev.RunID,
		Source:            source,
		State:             string(ev.State),
		TotalSegments:     ev.TotalSegments,
		CompletedSegments: ev.CompletedSegments,
		TranscriptPath:    outputs.TextPath,
		SubtitlePath:      outputs.SubtitlePath,
	}
	if runErr != nil {
		run.Error = runErr.Error()
		run.ErrorClass = services.ErrorClass(runErr)
	}
	if err := p.deps.History.Finish(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logger, "history finish failed", "history_write",
			logging.String(logging.FieldImpact, "history shows the run as unfinished"),
			logging.Error(err),
		)
	}
}
