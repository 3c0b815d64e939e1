package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"chunkscribe/internal/history"
	"chunkscribe/internal/language"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/services"
	"chunkscribe/internal/workflow"
)

// ErrRunNotFound is returned for unknown run identifiers.
var ErrRunNotFound = errors.New("run not found")

// ErrRunFinished is returned when cancelling a run that already ended.
var ErrRunFinished = errors.New("run already finished")

// PipelineFactory builds a fresh single-use pipeline.
type PipelineFactory func() (*workflow.Pipeline, error)

// HistoryReader abstracts the history queries the API needs.
// *history.Store satisfies it.
type HistoryReader interface {
	GetByID(ctx context.Context, id string) (*history.Run, error)
	List(ctx context.Context, limit int) ([]*history.Run, error)
}

type activeRun struct {
	pipeline *workflow.Pipeline
	source   string
	model    string
	started  time.Time

	mu      sync.Mutex
	last    workflow.Event
	updated time.Time
}

func (a *activeRun) observe(ev workflow.Event) {
	a.mu.Lock()
	a.last = ev
	a.updated = time.Now()
	a.mu.Unlock()
}

func (a *activeRun) snapshot() Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.last.State
	if state == "" {
		state = workflow.StateIdle
	}
	updated := a.updated
	if updated.IsZero() {
		updated = a.started
	}
	run := Run{
		ID:                a.pipeline.ID(),
		Source:            a.source,
		State:             string(state),
		Active:            true,
		Model:             a.model,
		CompletedSegments: a.last.CompletedSegments,
		TotalSegments:     a.last.TotalSegments,
		CreatedAt:         formatTime(a.started),
		UpdatedAt:         formatTime(updated),
	}
	return run
}

// Manager starts pipelines on behalf of API clients and tracks the ones
// still running.
type Manager struct {
	newPipeline PipelineFactory
	defaults    workflow.Options
	history     HistoryReader
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*activeRun
	closed bool
}

// NewManager constructs a Manager. defaults supplies every option a request
// leaves unset. history may be nil.
func NewManager(factory PipelineFactory, defaults workflow.Options, reader HistoryReader, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		newPipeline: factory,
		defaults:    defaults,
		history:     reader,
		logger:      logging.NewComponentLogger(logger, "api-runs"),
		ctx:         ctx,
		cancel:      cancel,
		active:      make(map[string]*activeRun),
	}
}

// Start validates req and launches a pipeline in the background.
func (m *Manager) Start(req CreateRunRequest) (Run, error) {
	source, opts, err := m.resolve(req)
	if err != nil {
		return Run{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Run{}, services.Wrap(services.ErrCancelled, "idle", "start", "server is shutting down", nil)
	}
	pipeline, err := m.newPipeline()
	if err != nil {
		return Run{}, err
	}
	run := &activeRun{
		pipeline: pipeline,
		source:   source,
		model:    opts.Model,
		started:  time.Now(),
	}
	m.active[pipeline.ID()] = run

	m.wg.Go(func() {
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for ev := range pipeline.Events() {
				run.observe(ev)
			}
		}()
		if _, err := pipeline.Run(m.ctx, source, opts); err != nil {
			m.logger.Debug("api run ended with error",
				logging.String(logging.FieldRunID, pipeline.ID()),
				logging.Error(err),
			)
		}
		<-drained
		m.mu.Lock()
		delete(m.active, pipeline.ID())
		m.mu.Unlock()
	})

	m.logger.Info("run started via api",
		logging.String(logging.FieldRunID, pipeline.ID()),
		logging.String("source", source),
	)
	return run.snapshot(), nil
}

func (m *Manager) resolve(req CreateRunRequest) (string, workflow.Options, error) {
	opts := m.defaults
	source := strings.TrimSpace(req.Path)
	if source == "" {
		return "", opts, services.Wrap(services.ErrValidation, "idle", "start", "path is required", nil)
	}
	if !filepath.IsAbs(source) {
		return "", opts, services.Wrap(services.ErrValidation, "idle", "start", "path must be absolute", nil)
	}
	info, err := os.Stat(source)
	if err != nil {
		return "", opts, services.Wrap(services.ErrValidation, "idle", "start", fmt.Sprintf("cannot open %s", source), err)
	}
	if info.IsDir() {
		return "", opts, services.Wrap(services.ErrValidation, "idle", "start", fmt.Sprintf("%s is a directory", source), nil)
	}

	if model := strings.TrimSpace(req.Model); model != "" {
		opts.Model = model
	}
	if strings.TrimSpace(req.Language) != "" {
		code, err := language.Normalize(req.Language)
		if err != nil {
			return "", opts, services.Wrap(services.ErrValidation, "idle", "start", err.Error(), nil)
		}
		if language.IsAuto(req.Language) {
			code = language.Auto
		}
		opts.Language = code
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		opts.Prompt = prompt
	}
	if req.Cues != nil {
		opts.GenerateCues = *req.Cues
	}
	if dir := strings.TrimSpace(req.OutputDir); dir != "" {
		if !filepath.IsAbs(dir) {
			return "", opts, services.Wrap(services.ErrValidation, "idle", "start", "outputDir must be absolute", nil)
		}
		opts.OutputDir = dir
	}
	return source, opts, nil
}

// Get returns a live snapshot for active runs and the history row otherwise.
func (m *Manager) Get(ctx context.Context, id string) (Run, error) {
	m.mu.Lock()
	run, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		return run.snapshot(), nil
	}
	if m.history == nil {
		return Run{}, ErrRunNotFound
	}
	stored, err := m.history.GetByID(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if stored == nil {
		return Run{}, ErrRunNotFound
	}
	return FromHistoryRun(stored), nil
}

// List returns active runs followed by up to limit history rows, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	live := make([]Run, 0, len(m.active))
	for _, run := range m.active {
		live = append(live, run.snapshot())
	}
	m.mu.Unlock()
	slices.SortFunc(live, func(a, b Run) int { return strings.Compare(b.CreatedAt, a.CreatedAt) })

	if m.history == nil {
		return live, nil
	}
	stored, err := m.history.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(live))
	for _, run := range live {
		seen[run.ID] = struct{}{}
	}
	runs := live
	for _, run := range FromHistoryRuns(stored) {
		if _, ok := seen[run.ID]; ok {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Cancel requests cancellation of an active run.
func (m *Manager) Cancel(ctx context.Context, id string) (Run, error) {
	m.mu.Lock()
	run, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		run.pipeline.Cancel()
		m.logger.Info("run cancel requested via api", logging.String(logging.FieldRunID, id))
		return run.snapshot(), nil
	}
	stored, err := m.Get(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return stored, ErrRunFinished
}

// ActiveCount returns the number of runs still in flight.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close cancels every active run and waits for them to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}
