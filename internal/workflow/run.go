package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"chunkscribe/internal/fileutil"
	"chunkscribe/internal/language"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/media"
	"chunkscribe/internal/reassembly"
	"chunkscribe/internal/segment"
	"chunkscribe/internal/services"
	"chunkscribe/internal/services/transcription"
)

func (p *Pipeline) execute(ctx context.Context, path string, opts Options, logger *slog.Logger) (reassembly.Transcript, error) {
	if opts.ByteLimit <= 0 {
		return reassembly.Transcript{}, services.Wrap(services.ErrConfiguration, string(StateIdle), "run", "byte limit must be positive", nil)
	}
	base := fileutil.OutputBase(path, opts.OutputDir)
	lock, err := acquireOutputLock(base)
	if err != nil {
		return reassembly.Transcript{}, err
	}
	defer releaseOutputLock(lock, logger)

	workDir := filepath.Join(p.settings.WorkRoot, p.id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return reassembly.Transcript{}, services.Wrap(services.ErrConfiguration, string(StateIdle), "workdir", "cannot create work directory", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logging.WarnWithContext(logger, "work directory cleanup failed", "workdir_cleanup",
				logging.String("work_dir", workDir),
				logging.String(logging.FieldImpact, "temporary audio left on disk"),
				logging.Error(err),
			)
		}
	}()

	p.transition(ctx, StateProbing)
	file, err := p.deps.Prober.Probe(ctx, path)
	if err != nil {
		return reassembly.Transcript{}, err
	}
	if opts.Language == "" && file.Language != "" {
		opts.Language = file.Language
		logger.Debug("using stream language tag", logging.String("language", file.Language))
	}
	if p.deps.Optimize != nil {
		file, err = p.deps.Optimize(ctx, file, workDir)
		if err != nil {
			return reassembly.Transcript{}, err
		}
	}

	p.transition(ctx, StatePlanning)
	plan, err := p.deps.Planner.Plan(ctx, file, opts.ByteLimit)
	if err != nil {
		return reassembly.Transcript{}, err
	}
	if err := plan.Validate(); err != nil {
		return reassembly.Transcript{}, services.Wrap(services.ErrValidation, string(StatePlanning), "plan", "invalid segment plan", err)
	}
	p.growTotal(plan.Len())

	p.transition(ctx, StateExtracting)
	segmenter, err := segment.NewSegmenter(filepath.Join(workDir, "segments"), p.deps.Extractor, opts.ByteLimit, p.settings.Segment, p.logger)
	if err != nil {
		return reassembly.Transcript{}, err
	}
	defer func() {
		if err := segmenter.Cleanup(); err != nil {
			logger.Warn("segment cleanup failed", logging.Error(err))
		}
	}()

	final, results, err := p.transcribeAll(ctx, file, plan, segmenter, opts, logger)
	if err != nil {
		return reassembly.Transcript{}, err
	}

	if !p.enterMerging(ctx) {
		return reassembly.Transcript{}, services.Wrap(services.ErrCancelled, string(StateTranscribing), "run", "", context.Canceled)
	}
	transcript, err := reassembly.Merge(results, final, final.Duration)
	if err != nil {
		return reassembly.Transcript{}, err
	}
	outputs, err := reassembly.WriteOutputs(transcript, path, reassembly.OutputOptions{
		OutputDir: opts.OutputDir,
		Subtitles: opts.GenerateCues,
	})
	if err != nil {
		return reassembly.Transcript{}, services.Wrap(services.ErrConfiguration, string(StateMerging), "write", "cannot write outputs", err)
	}
	p.mu.Lock()
	p.outputs = outputs
	p.mu.Unlock()
	return transcript, nil
}

// transcribeAll streams extracted segments into a bounded worker pool and
// returns the final plan with one result per segment, in index order.
func (p *Pipeline) transcribeAll(ctx context.Context, file media.File, plan segment.Plan, segmenter *segment.Segmenter, opts Options, logger *slog.Logger) (segment.Plan, []transcription.Result, error) {
	workCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		mu       sync.Mutex
		firstErr error
		results  = make(map[int]transcription.Result, plan.Len())
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		stop()
	}

	hint := opts.Language
	if hint == language.Auto {
		hint = ""
	}
	transcribeOpts := transcription.Options{
		Model:        opts.Model,
		WantCues:     opts.GenerateCues,
		LanguageHint: hint,
		Prompt:       opts.Prompt,
	}
	jobs := make(chan segment.Audio)
	var wg sync.WaitGroup
	for range opts.MaxConcurrency {
		wg.Go(func() {
			for audio := range jobs {
				result, err := p.transcribeSegment(workCtx, segmenter, audio, transcribeOpts)
				if err != nil {
					if workCtx.Err() == nil {
						fail(err)
					}
					continue
				}
				mu.Lock()
				results[audio.Segment.Index] = result
				mu.Unlock()
				p.segmentDone(logger, audio.Segment.Index)
			}
		})
	}

	submitted := false
	final, streamErr := segmenter.Stream(workCtx, file, plan, func(audio segment.Audio) error {
		if !submitted {
			submitted = true
			p.transition(ctx, StateTranscribing)
		}
		p.growTotal(audio.Segment.Index + 1 + remainingAfter(plan, audio.Segment.End))
		select {
		case jobs <- audio:
			return nil
		case <-workCtx.Done():
			return workCtx.Err()
		}
	})
	if streamErr != nil && workCtx.Err() == nil {
		fail(streamErr)
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return segment.Plan{}, nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return segment.Plan{}, nil, services.Wrap(services.ErrCancelled, string(StateTranscribing), "transcribe", "", err)
	}
	if streamErr != nil {
		return segment.Plan{}, nil, streamErr
	}
	p.growTotal(final.Len())

	ordered := make([]transcription.Result, final.Len())
	for i := range ordered {
		result, ok := results[i]
		if !ok {
			return segment.Plan{}, nil, services.Wrap(services.ErrValidation, string(StateTranscribing), "collect",
				fmt.Sprintf("segment %d has no result", i), nil)
		}
		ordered[i] = result
	}
	return final, ordered, nil
}

// transcribeSegment submits one segment and always releases its file.
func (p *Pipeline) transcribeSegment(ctx context.Context, segmenter *segment.Segmenter, audio segment.Audio, opts transcription.Options) (transcription.Result, error) {
	defer func() {
		if err := segmenter.Release(audio); err != nil {
			p.logger.Warn("segment release failed", logging.Error(err))
		}
	}()
	if err := ctx.Err(); err != nil {
		return transcription.Result{}, err
	}
	segCtx := services.WithSegmentIndex(ctx, audio.Segment.Index)
	result, err := p.deps.Transcriber.Transcribe(segCtx, audio, opts)
	if err != nil {
		return transcription.Result{}, &services.SegmentError{
			Index: audio.Segment.Index,
			Start: audio.Segment.Start,
			End:   audio.Segment.End,
			Err:   err,
		}
	}
	result.SegmentIndex = audio.Segment.Index
	return result, nil
}

// remainingAfter counts planned segments that start at or after end.
func remainingAfter(plan segment.Plan, end float64) int {
	count := 0
	for _, seg := range plan.Segments {
		if seg.Start >= end {
			count++
		}
	}
	return count
}

func acquireOutputLock(base string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, string(StateIdle), "lock", "cannot create output directory", err)
	}
	lock := flock.New(base + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, string(StateIdle), "lock", "cannot lock output", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, string(StateIdle), "lock",
			fmt.Sprintf("another run is already writing %s", base), nil)
	}
	return lock, nil
}

func releaseOutputLock(lock *flock.Flock, logger *slog.Logger) {
	if err := lock.Unlock(); err != nil {
		logger.Warn("failed to release output lock", logging.Error(err))
		return
	}
	_ = os.Remove(lock.Path())
}
