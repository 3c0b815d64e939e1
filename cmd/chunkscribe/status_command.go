package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chunkscribe/internal/config"
	"chunkscribe/internal/deps"
	"chunkscribe/internal/language"
	"chunkscribe/internal/media"
	"chunkscribe/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check ffmpeg, directories, and transcription service access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lines, failures := collectStatus(cmd.Context(), cfg, shouldColorize(cmd.OutOrStdout()), offline)
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the transcription API check")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, colorize, offline bool) ([]string, int) {
	var lines []string
	failures := 0

	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, status := range preflight.CheckSystemDeps(ctx, cfg) {
		lines = append(lines, dependencyStatusLine(status, colorize))
		if !status.Available && !status.Optional {
			failures++
		}
	}
	if version, err := deps.FFmpegVersion(ctx, media.ExecRunner, cfg.FFmpegBinary()); err == nil {
		lines = append(lines, renderStatusLine("FFmpeg version", statusInfo, version, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Directories", colorize)...)
	checks := []preflight.Result{
		preflight.CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		preflight.CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, 4*uint64(cfg.Segmenter.ByteLimit)),
		preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.OutputDir != "" {
		checks = append(checks, preflight.CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}
	for _, result := range checks {
		lines = append(lines, preflightStatusLine(result, colorize))
		if !result.Passed {
			failures++
		}
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Transcription", colorize)...)
	lines = append(lines, renderStatusLine("Model", statusInfo, cfg.Transcription.Model, colorize))
	lines = append(lines, renderStatusLine("Language", statusInfo, language.DisplayName(cfg.Transcription.Language), colorize))
	lines = append(lines, renderStatusLine("Subtitles", statusInfo, yesNo(cfg.Transcription.GenerateCues), colorize))
	if offline {
		lines = append(lines, renderStatusLine("Transcription API", statusInfo, "skipped (--offline)", colorize))
	} else {
		result := preflight.CheckTranscriptionAPI(ctx, cfg)
		lines = append(lines, preflightStatusLine(result, colorize))
		if !result.Passed {
			failures++
		}
	}
	return lines, failures
}
