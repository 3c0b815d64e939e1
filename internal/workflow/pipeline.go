package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"chunkscribe/internal/history"
	"chunkscribe/internal/language"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/media"
	"chunkscribe/internal/reassembly"
	"chunkscribe/internal/segment"
	"chunkscribe/internal/services"
	"chunkscribe/internal/services/transcription"
)

const (
	defaultConcurrency = 3
	defaultEventBuffer = 64
)

// Prober reads media metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (media.File, error)
}

// Planner computes a segment plan for a probed file.
type Planner interface {
	Plan(ctx context.Context, file media.File, byteLimit int64) (segment.Plan, error)
}

// OptimizeFunc re-encodes a probed file into workDir before planning.
type OptimizeFunc func(ctx context.Context, file media.File, workDir string) (media.File, error)

// Recorder persists run history. *history.Store satisfies it.
type Recorder interface {
	Create(ctx context.Context, run history.Run) (string, error)
	UpdateProgress(ctx context.Context, id, state string, completed, total int) error
	Finish(ctx context.Context, run history.Run) error
}

// Dependencies are the collaborators a Pipeline drives. Optimize and
// History are optional.
type Dependencies struct {
	Prober      Prober
	Optimize    OptimizeFunc
	Planner     Planner
	Extractor   segment.Extractor
	Transcriber transcription.Transcriber
	History     Recorder
}

// Settings are fixed for the lifetime of a Pipeline.
type Settings struct {
	// WorkRoot holds one scratch directory per run.
	WorkRoot    string
	Segment     segment.Options
	EventBuffer int
}

// Options select how one input is transcribed.
type Options struct {
	Model          string
	GenerateCues   bool
	Language       string
	Prompt         string
	ByteLimit      int64
	MaxConcurrency int
	OutputDir      string
}

// Pipeline runs a single transcription. Create a new Pipeline per input.
type Pipeline struct {
	deps     Dependencies
	settings Settings
	logger   *slog.Logger
	id       string
	bus      *eventBus
	started  atomic.Bool

	mu              sync.Mutex
	state           State
	cancel          context.CancelFunc
	cancelRequested bool
	completed       int
	total           int
	outputs         reassembly.Outputs
	sampler         *logging.ProgressSampler
}

// NewPipeline validates deps and returns an idle pipeline.
func NewPipeline(deps Dependencies, settings Settings, logger *slog.Logger) (*Pipeline, error) {
	switch {
	case deps.Prober == nil:
		return nil, errors.New("workflow: prober is required")
	case deps.Planner == nil:
		return nil, errors.New("workflow: planner is required")
	case deps.Extractor == nil:
		return nil, errors.New("workflow: extractor is required")
	case deps.Transcriber == nil:
		return nil, errors.New("workflow: transcriber is required")
	}
	if strings.TrimSpace(settings.WorkRoot) == "" {
		return nil, services.Wrap(services.ErrConfiguration, string(StateIdle), "pipeline", "work directory is required", nil)
	}
	if settings.EventBuffer <= 0 {
		settings.EventBuffer = defaultEventBuffer
	}
	return &Pipeline{
		deps:     deps,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		id:       uuid.NewString(),
		bus:      newEventBus(settings.EventBuffer),
		state:    StateIdle,
		sampler:  logging.NewProgressSampler(10),
	}, nil
}

// ID returns the run identifier used in events, logs, and history.
func (p *Pipeline) ID() string {
	return p.id
}

// Events returns the progress stream. It is closed after the terminal event.
func (p *Pipeline) Events() <-chan Event {
	return p.bus.ch
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Outputs returns the files written by a successful run.
func (p *Pipeline) Outputs() reassembly.Outputs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputs
}

// Cancel asks the run to stop. No segment is submitted after Cancel
// returns and in-flight requests are aborted through their context. Once
// merging has begun the run completes normally.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() || p.state == StateMerging {
		return
	}
	p.cancelRequested = true
	if p.cancel != nil {
		p.cancel()
	}
}

// Run transcribes path and writes its outputs. It may be called once.
func (p *Pipeline) Run(ctx context.Context, path string, opts Options) (reassembly.Transcript, error) {
	if !p.started.CompareAndSwap(false, true) {
		return reassembly.Transcript{}, errAlreadyStarted
	}
	opts = normalizeOptions(opts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.cancel = cancel
	if p.cancelRequested {
		cancel()
	}
	p.mu.Unlock()

	runCtx = services.WithRunID(runCtx, p.id)
	logger := logging.WithContext(runCtx, p.logger)
	p.recordStart(runCtx, path, opts, logger)
	logger.Info("pipeline started",
		logging.String("source", path),
		logging.String("model", opts.Model),
		logging.Int64("byte_limit", opts.ByteLimit),
		logging.Int("max_concurrency", opts.MaxConcurrency),
		logging.Bool("cues", opts.GenerateCues),
	)

	transcript, err := p.execute(runCtx, path, opts, logger)
	err = p.resolveError(ctx, err)
	p.finish(runCtx, path, err, logger)
	if err != nil {
		return reassembly.Transcript{}, err
	}
	return transcript, nil
}

func normalizeOptions(opts Options) Options {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultConcurrency
	}
	opts.Model = strings.TrimSpace(opts.Model)
	if language.IsAuto(opts.Language) {
		opts.Language = language.Auto
	} else if code, err := language.Normalize(opts.Language); err == nil {
		opts.Language = code
	} else {
		opts.Language = strings.TrimSpace(opts.Language)
	}
	return opts
}

// resolveError turns any failure observed after a cancel request, or after
// the caller's context was cancelled, into ErrCancelled.
func (p *Pipeline) resolveError(parent context.Context, err error) error {
	p.mu.Lock()
	requested := p.cancelRequested
	stage := p.state
	p.mu.Unlock()

	switch {
	case requested:
		return services.Wrap(services.ErrCancelled, string(stage), "run", "cancelled by request", nil)
	case err != nil && parent.Err() != nil && !services.IsCancellation(err):
		return services.Wrap(services.ErrCancelled, string(stage), "run", "", parent.Err())
	case err != nil && errors.Is(err, context.Canceled) && !errors.Is(err, services.ErrCancelled):
		return services.Wrap(services.ErrCancelled, string(stage), "run", "", err)
	default:
		return err
	}
}

// transition moves to next and publishes the change. Invalid moves are ignored.
func (p *Pipeline) transition(ctx context.Context, next State) bool {
	p.mu.Lock()
	if !canTransition(p.state, next) {
		p.mu.Unlock()
		return false
	}
	p.state = next
	ev := p.eventLocked()
	p.bus.publish(ev)
	p.mu.Unlock()

	p.logger.Info("pipeline state changed",
		logging.String(logging.FieldRunID, p.id),
		logging.String(logging.FieldStage, string(next)),
		logging.Int("completed_segments", ev.CompletedSegments),
		logging.Int("total_segments", ev.TotalSegments),
	)
	p.recordProgress(ctx, ev)
	return true
}

// enterMerging moves to Merging unless a cancel request got there first.
func (p *Pipeline) enterMerging(ctx context.Context) bool {
	p.mu.Lock()
	if p.cancelRequested || !canTransition(p.state, StateMerging) {
		p.mu.Unlock()
		return false
	}
	p.state = StateMerging
	ev := p.eventLocked()
	p.bus.publish(ev)
	p.mu.Unlock()
	p.recordProgress(ctx, ev)
	return true
}

func (p *Pipeline) eventLocked() Event {
	return Event{
		RunID:             p.id,
		State:             p.state,
		CompletedSegments: p.completed,
		TotalSegments:     p.total,
	}
}

// growTotal raises the known segment count. It never shrinks.
func (p *Pipeline) growTotal(total int) {
	p.mu.Lock()
	if total > p.total {
		p.total = total
		p.bus.publish(p.eventLocked())
	}
	p.mu.Unlock()
}

// segmentDone counts one finished segment and publishes progress.
func (p *Pipeline) segmentDone(logger *slog.Logger, index int) {
	p.mu.Lock()
	p.completed++
	ev := p.eventLocked()
	p.bus.publish(ev)
	shouldLog := p.sampler.ShouldLog(ev.CompletedSegments, ev.TotalSegments)
	p.mu.Unlock()

	if shouldLog {
		logger.Info("transcription progress",
			logging.Int(logging.FieldSegmentIndex, index),
			logging.Int("completed_segments", ev.CompletedSegments),
			logging.Int("total_segments", ev.TotalSegments),
		)
	}
}

// finish enters the terminal state, records it, and closes the event stream.
func (p *Pipeline) finish(ctx context.Context, source string, err error, logger *slog.Logger) {
	state := FailureState(err)
	p.mu.Lock()
	p.state = state
	ev := p.eventLocked()
	if state == StateFailed {
		ev.Err = err
	}
	outputs := p.outputs
	p.bus.finish(ev)
	p.mu.Unlock()

	switch state {
	case StateDone:
		logger.Info("pipeline finished",
			logging.String("transcript", outputs.TextPath),
			logging.String("subtitles", outputs.SubtitlePath),
			logging.Int("total_segments", ev.TotalSegments),
		)
	case StateCancelled:
		logger.Info("pipeline cancelled",
			logging.Int("completed_segments", ev.CompletedSegments),
			logging.Int("total_segments", ev.TotalSegments),
		)
	default:
		logging.ErrorWithContext(logger, "pipeline failed", "run_failed",
			logging.String(logging.FieldErrorClass, services.ErrorClass(err)),
			logging.String(logging.FieldErrorHint, failureHint(err)),
			logging.Error(err),
		)
	}
	p.recordFinish(ctx, source, ev, outputs, err, logger)
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrAuthentication):
		return "check transcription.api_key or OPENAI_API_KEY"
	case errors.Is(err, services.ErrUnreadableMedia):
		return "verify the input file plays and contains an audio stream"
	case errors.Is(err, services.ErrSegmentTooLarge):
		return "raise segmenter.byte_limit or lower segmenter.audio_bitrate"
	case errors.Is(err, services.ErrEncodingFailed):
		return "run chunkscribe status to verify ffmpeg"
	case errors.Is(err, services.ErrTransientService):
		return "service unavailable; retry later or raise transcription.max_retries"
	case errors.Is(err, services.ErrPayloadTooLarge):
		return "lower segmenter.byte_limit below the service upload limit"
	default:
		return "check logs for details"
	}
}
