package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"chunkscribe/internal/config"
	"chunkscribe/internal/history"
	"chunkscribe/internal/language"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/preflight"
	"chunkscribe/internal/reassembly"
	"chunkscribe/internal/services"
	"chunkscribe/internal/workflow"
)

type transcribeFlags struct {
	overrides     runOverrides
	cues          bool
	noCues        bool
	copy          bool
	print         bool
	jsonOutput    bool
	skipPreflight bool
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	flags := transcribeFlags{overrides: runOverrides{retries: -1}}

	cmd := &cobra.Command{
		Use:   "transcribe <file> [file...]",
		Short: "Transcribe audio or video files",
		Long: "Transcribe one or more media files. Each file is probed, split on silence when it\n" +
			"exceeds the upload limit, transcribed concurrently, and written next to the source\n" +
			"(or into --output-dir) as <name>.txt and, with --cues, <name>.srt.\n\n" +
			"Ctrl-C cancels the current run; segments already in flight are aborted.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.resolve(cmd); err != nil {
				return err
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return services.Wrap(services.ErrConfiguration, "idle", "config", err.Error(), nil)
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			if !flags.skipPreflight {
				if err := runPreflight(cmd.Context(), cfg); err != nil {
					return err
				}
			}
			store, err := ctx.historyStore()
			if err != nil {
				logging.WarnWithContext(logger, "history unavailable", "history_open",
					logging.String(logging.FieldImpact, "runs will not be recorded"),
					logging.Error(err),
				)
				store = nil
			}
			return runTranscriptions(cmd, cfg, flags, store, logger, args)
		},
	}

	cmd.Flags().StringVar(&flags.overrides.model, "model", "", "Transcription model (default from config)")
	cmd.Flags().StringVar(&flags.overrides.language, "language", "", "Language hint: ISO code, name, or \"auto\"")
	cmd.Flags().StringVar(&flags.overrides.prompt, "prompt", "", "Context prompt sent with every segment")
	cmd.Flags().StringVarP(&flags.overrides.outputDir, "output-dir", "o", "", "Directory for transcript files (default: beside the source)")
	cmd.Flags().Int64Var(&flags.overrides.byteLimit, "byte-limit", 0, "Maximum upload size per request in bytes")
	cmd.Flags().IntVarP(&flags.overrides.concurrency, "concurrency", "j", 0, "Concurrent transcription requests")
	cmd.Flags().IntVar(&flags.overrides.retries, "retries", -1, "Retries per segment for transient failures")
	cmd.Flags().BoolVar(&flags.overrides.noSilence, "no-silence", false, "Cut at exact byte targets instead of nearby silence")
	cmd.Flags().BoolVar(&flags.cues, "cues", false, "Write an SRT subtitle file")
	cmd.Flags().BoolVar(&flags.noCues, "no-cues", false, "Do not write an SRT subtitle file")
	cmd.Flags().BoolVar(&flags.copy, "copy", false, "Copy the transcript to the clipboard")
	cmd.Flags().BoolVarP(&flags.print, "print", "p", false, "Print the transcript to stdout")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print run results as JSON")
	cmd.Flags().BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip ffmpeg and directory checks")
	cmd.MarkFlagsMutuallyExclusive("cues", "no-cues")
	return cmd
}

func (f *transcribeFlags) resolve(cmd *cobra.Command) error {
	switch {
	case f.cues:
		value := true
		f.overrides.cues = &value
	case f.noCues:
		value := false
		f.overrides.cues = &value
	}
	if cmd.Flags().Changed("language") {
		code, err := language.Normalize(f.overrides.language)
		if err != nil {
			return services.Wrap(services.ErrValidation, "idle", "flags", err.Error(), nil)
		}
		if code == "" {
			// Explicit "auto" overrides both a configured language and the stream tag.
			code = language.Auto
		}
		f.overrides.language = code
	}
	if f.overrides.outputDir != "" {
		dir, err := config.ExpandPath(f.overrides.outputDir)
		if err != nil {
			return err
		}
		f.overrides.outputDir = dir
	}
	return nil
}

func runPreflight(ctx context.Context, cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	details := make([]string, 0, len(failed))
	for _, result := range failed {
		details = append(details, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "idle", "preflight",
		"preflight failed ("+strings.Join(details, "; ")+"); run 'chunkscribe status' or pass --skip-preflight", nil)
}

// transcribeResult is the per-file summary printed with --json.
type transcribeResult struct {
	Source     string  `json:"source"`
	RunID      string  `json:"runId"`
	State      string  `json:"state"`
	Transcript string  `json:"transcript,omitempty"`
	Subtitles  string  `json:"subtitles,omitempty"`
	Segments   int     `json:"segments"`
	Cues       int     `json:"cues"`
	Seconds    float64 `json:"seconds"`
	Error      string  `json:"error,omitempty"`
	ErrorClass string  `json:"errorClass,omitempty"`
	Elapsed    string  `json:"elapsed"`
}

func runTranscriptions(cmd *cobra.Command, cfg *config.Config, flags transcribeFlags, store *history.Store, logger *slog.Logger, paths []string) error {
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pipelineOptions(cfg, flags.overrides)
	deps, settings := buildDependencies(cfg, flags.overrides, store, logger)

	var (
		results  []transcribeResult
		firstErr error
		copied   []string
	)
	for _, raw := range paths {
		if sigCtx.Err() != nil {
			break
		}
		path, err := config.ExpandPath(raw)
		if err != nil {
			return err
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}

		pipeline, err := workflow.NewPipeline(deps, settings, logger)
		if err != nil {
			return err
		}
		result, transcript, err := runOne(sigCtx, cmd.ErrOrStderr(), pipeline, path, opts, flags.jsonOutput)
		results = append(results, result)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if !flags.jsonOutput {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", filepath.Base(path), err)
			}
			if services.IsCancellation(err) {
				break
			}
			continue
		}
		if flags.print && !flags.jsonOutput {
			fmt.Fprintln(cmd.OutOrStdout(), transcript.FullText)
		}
		copied = append(copied, transcript.FullText)
	}

	if flags.copy && len(copied) > 0 {
		if err := clipboard.WriteAll(strings.Join(copied, "\n\n")); err != nil {
			logging.WarnWithContext(logger, "clipboard copy failed", "clipboard",
				logging.String(logging.FieldImpact, "transcript not copied"),
				logging.Error(err),
			)
		} else if !flags.jsonOutput {
			fmt.Fprintln(cmd.ErrOrStderr(), "Transcript copied to clipboard")
		}
	}

	if flags.jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		for _, result := range results {
			if result.State != string(workflow.StateDone) {
				continue
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s (%d segments, %s)\n",
				filepath.Base(result.Source), result.Transcript, result.Segments, result.Elapsed)
			if result.Subtitles != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %s (%d cues)\n", filepath.Base(result.Source), result.Subtitles, result.Cues)
			}
		}
	}
	return firstErr
}

// runOne drives a single pipeline, rendering events as a progress bar on a
// terminal and as plain lines otherwise.
func runOne(ctx context.Context, stderr io.Writer, pipeline *workflow.Pipeline, path string, opts workflow.Options, quiet bool) (transcribeResult, reassembly.Transcript, error) {
	started := time.Now()
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		select {
		case <-ctx.Done():
			pipeline.Cancel()
		case <-runCtx.Done():
		}
	}()

	progress := newProgressReporter(stderr, filepath.Base(path), quiet)
	done := make(chan workflow.Event, 1)
	go func() {
		var last workflow.Event
		for ev := range pipeline.Events() {
			progress.update(ev)
			last = ev
		}
		done <- last
	}()

	transcript, err := pipeline.Run(runCtx, path, opts)
	last := <-done
	progress.finish(last)

	outputs := pipeline.Outputs()
	result := transcribeResult{
		Source:     path,
		RunID:      pipeline.ID(),
		State:      string(last.State),
		Transcript: outputs.TextPath,
		Subtitles:  outputs.SubtitlePath,
		Segments:   last.TotalSegments,
		Cues:       len(transcript.Cues),
		Seconds:    transcript.Duration,
		Elapsed:    time.Since(started).Round(time.Second).String(),
	}
	if err != nil {
		result.Error = err.Error()
		result.ErrorClass = services.ErrorClass(err)
		var segErr *services.SegmentError
		if errors.As(err, &segErr) {
			result.Error = fmt.Sprintf("segment %d (%.1fs-%.1fs): %v", segErr.Index, segErr.Start, segErr.End, segErr.Err)
		}
	}
	return result, transcript, err
}

type progressReporter struct {
	out   io.Writer
	label string
	bar   *progressbar.ProgressBar
	quiet bool
	state workflow.State
}

func newProgressReporter(out io.Writer, label string, quiet bool) *progressReporter {
	r := &progressReporter{out: out, label: label, quiet: quiet}
	if quiet || !shouldColorize(out) {
		return r
	}
	r.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(label+" [idle]"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	return r
}

func (r *progressReporter) update(ev workflow.Event) {
	if r.quiet {
		return
	}
	if r.bar == nil {
		if ev.State != r.state {
			fmt.Fprintf(r.out, "%s: %s\n", r.label, ev.State)
		} else if ev.State == workflow.StateTranscribing && ev.CompletedSegments > 0 {
			fmt.Fprintf(r.out, "%s: %d/%d segments\n", r.label, ev.CompletedSegments, ev.TotalSegments)
		}
		r.state = ev.State
		return
	}
	if ev.State != r.state {
		r.bar.Describe(fmt.Sprintf("%s [%s]", r.label, ev.State))
		r.state = ev.State
	}
	if ev.TotalSegments > 0 && r.bar.GetMax() != ev.TotalSegments {
		r.bar.ChangeMax(ev.TotalSegments)
	}
	_ = r.bar.Set(ev.CompletedSegments)
}

func (r *progressReporter) finish(last workflow.Event) {
	if r.bar != nil {
		_ = r.bar.Finish()
		_ = r.bar.Clear()
	}
	if !r.quiet && r.bar == nil && last.State != r.state {
		fmt.Fprintf(r.out, "%s: %s\n", r.label, last.State)
	}
}
