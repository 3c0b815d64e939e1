package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"chunkscribe/internal/config"
	"chunkscribe/internal/history"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/media"
	"chunkscribe/internal/segment"
	"chunkscribe/internal/services/transcription"
	"chunkscribe/internal/workflow"
)

// runOverrides carries per-invocation flag values on top of config.
type runOverrides struct {
	model       string
	language    string
	prompt      string
	outputDir   string
	byteLimit   int64
	concurrency int
	retries     int
	cues        *bool
	noSilence   bool
}

func logFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
}

func newTranscriptionClient(cfg *config.Config, retries int, logger *slog.Logger) *transcription.Client {
	if retries < 0 {
		retries = cfg.Transcription.MaxRetries
	}
	return transcription.NewClient(transcription.Config{
		APIKey:         cfg.Transcription.APIKey,
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		RequestTimeout: cfg.RequestTimeout(),
	},
		transcription.WithMaxRetries(retries),
		transcription.WithRetryBackoff(time.Second, cfg.RetryMaxDelay()),
		transcription.WithLogger(logger),
	)
}

func newPlanner(cfg *config.Config, encoder *media.Encoder, silence bool, logger *slog.Logger) *segment.Planner {
	var cuts segment.CutStrategy
	if silence {
		cuts = segment.SilenceCuts(media.ExecRunner, encoder.Binary(), segment.SilenceOptions{
			NoiseDB:      cfg.Segmenter.SilenceNoiseDB,
			MinSeconds:   cfg.Segmenter.SilenceMinSeconds,
			SearchWindow: cfg.Segmenter.SearchWindowSecond,
		}, logger)
	}
	return segment.NewPlanner(segmentOptions(cfg), cuts, logger)
}

func segmentOptions(cfg *config.Config) segment.Options {
	return segment.Options{
		SafetyRatio:       cfg.Segmenter.SafetyRatio,
		SplitThreshold:    cfg.Segmenter.SplitThreshold,
		MinSegmentSeconds: cfg.Segmenter.MinSegmentSeconds,
	}
}

// buildDependencies wires the real ffmpeg, planner, and HTTP client into
// pipeline dependencies. store may be nil.
func buildDependencies(cfg *config.Config, o runOverrides, store *history.Store, logger *slog.Logger) (workflow.Dependencies, workflow.Settings) {
	prober := media.NewProber(cfg.FFprobeBinary(), logger)
	encoder := media.NewEncoder(cfg.FFmpegBinary(), cfg.Segmenter.AudioBitrate, media.ExecRunner)

	deps := workflow.Dependencies{
		Prober:      prober,
		Planner:     newPlanner(cfg, encoder, cfg.Segmenter.SilenceDetection && !o.noSilence, logger),
		Extractor:   encoder,
		Transcriber: newTranscriptionClient(cfg, o.retries, logger),
	}
	if cfg.Segmenter.Optimize {
		deps.Optimize = func(ctx context.Context, file media.File, workDir string) (media.File, error) {
			return media.Optimize(ctx, encoder, prober, file, workDir)
		}
	}
	if store != nil {
		deps.History = store
	}
	settings := workflow.Settings{
		WorkRoot:    cfg.Paths.WorkDir,
		Segment:     segmentOptions(cfg),
		EventBuffer: cfg.Pipeline.EventBuffer,
	}
	return deps, settings
}

// pipelineOptions merges config defaults with flag overrides.
func pipelineOptions(cfg *config.Config, o runOverrides) workflow.Options {
	opts := workflow.Options{
		Model:          cfg.Transcription.Model,
		GenerateCues:   cfg.Transcription.GenerateCues,
		Language:       cfg.Transcription.Language,
		Prompt:         cfg.Transcription.Prompt,
		ByteLimit:      cfg.Segmenter.ByteLimit,
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		OutputDir:      cfg.Paths.OutputDir,
	}
	if o.model != "" {
		opts.Model = o.model
	}
	if o.language != "" {
		opts.Language = o.language
	}
	if o.prompt != "" {
		opts.Prompt = o.prompt
	}
	if o.outputDir != "" {
		opts.OutputDir = o.outputDir
	}
	if o.byteLimit > 0 {
		opts.ByteLimit = o.byteLimit
	}
	if o.concurrency > 0 {
		opts.MaxConcurrency = o.concurrency
	}
	if o.cues != nil {
		opts.GenerateCues = *o.cues
	}
	return opts
}
