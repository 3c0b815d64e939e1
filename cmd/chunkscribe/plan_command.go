package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chunkscribe/internal/config"
	"chunkscribe/internal/media"
	"chunkscribe/internal/segment"
)

type planRow struct {
	Index          int     `json:"index"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	EstimatedBytes int64   `json:"estimatedBytes"`
}

type planOutput struct {
	Source         string    `json:"source"`
	Duration       float64   `json:"durationSeconds"`
	SizeBytes      int64     `json:"sizeBytes"`
	ByteLimit      int64     `json:"byteLimit"`
	Optimized      bool      `json:"optimized"`
	NeedsSplitting bool      `json:"needsSplitting"`
	Language       string    `json:"language,omitempty"`
	Segments       []planRow `json:"segments"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var overrides runOverrides
	var optimize bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Show how a file would be segmented without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("optimize") {
				optimize = cfg.Segmenter.Optimize
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			byteLimit := cfg.Segmenter.ByteLimit
			if overrides.byteLimit > 0 {
				byteLimit = overrides.byteLimit
			}

			prober := media.NewProber(cfg.FFprobeBinary(), logger)
			encoder := media.NewEncoder(cfg.FFmpegBinary(), cfg.Segmenter.AudioBitrate, media.ExecRunner)
			file, err := prober.Probe(cmd.Context(), path)
			if err != nil {
				return err
			}
			source := file
			if optimize {
				workDir, err := os.MkdirTemp(cfg.Paths.WorkDir, "plan-")
				if err != nil {
					return fmt.Errorf("create work directory: %w", err)
				}
				defer os.RemoveAll(workDir)
				file, err = media.Optimize(cmd.Context(), encoder, prober, file, workDir)
				if err != nil {
					return err
				}
			}

			planner := newPlanner(cfg, encoder, cfg.Segmenter.SilenceDetection && !overrides.noSilence, logger)
			plan, err := planner.Plan(cmd.Context(), file, byteLimit)
			if err != nil {
				return err
			}
			out := buildPlanOutput(source, file, plan, optimize)
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			renderPlan(cmd, out)
			return nil
		},
	}

	cmd.Flags().Int64Var(&overrides.byteLimit, "byte-limit", 0, "Maximum upload size per request in bytes")
	cmd.Flags().BoolVar(&overrides.noSilence, "no-silence", false, "Cut at exact byte targets instead of nearby silence")
	cmd.Flags().BoolVar(&optimize, "optimize", false, "Plan against the speech-optimized re-encode (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON")
	return cmd
}

func buildPlanOutput(source, planned media.File, plan segment.Plan, optimized bool) planOutput {
	out := planOutput{
		Source:         source.Path,
		Duration:       plan.Duration,
		SizeBytes:      planned.SizeBytes,
		ByteLimit:      plan.ByteLimit,
		Optimized:      optimized,
		NeedsSplitting: plan.Len() > 1,
		Language:       source.Language,
		Segments:       make([]planRow, 0, plan.Len()),
	}
	rate := planned.BytesPerSecond()
	for _, seg := range plan.Segments {
		out.Segments = append(out.Segments, planRow{
			Index:          seg.Index,
			Start:          seg.Start,
			End:            seg.End,
			EstimatedBytes: int64(seg.Duration() * rate),
		})
	}
	return out
}

func renderPlan(cmd *cobra.Command, out planOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Source:     %s\n", filepath.Base(out.Source))
	fmt.Fprintf(w, "Duration:   %s\n", formatClock(out.Duration))
	size := humanize.IBytes(uint64(max(out.SizeBytes, 0)))
	if out.Optimized {
		size += " (optimized)"
	}
	fmt.Fprintf(w, "Size:       %s\n", size)
	fmt.Fprintf(w, "Byte limit: %s\n", humanize.IBytes(uint64(max(out.ByteLimit, 0))))
	if out.Language != "" {
		fmt.Fprintf(w, "Language:   %s (stream tag)\n", out.Language)
	}
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(out.Segments))
	for _, seg := range out.Segments {
		rows = append(rows, []string{
			fmt.Sprintf("%d", seg.Index),
			formatClock(seg.Start),
			formatClock(seg.End),
			formatClock(seg.End - seg.Start),
			humanize.IBytes(uint64(max(seg.EstimatedBytes, 0))),
		})
	}
	fmt.Fprintln(w, renderTable([]column{
		{"#", true}, {"Start", true}, {"End", true}, {"Length", true}, {"Est. size", true},
	}, rows))
}

// formatClock renders seconds as H:MM:SS.s.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	tenths := int64(seconds*10 + 0.5)
	h := tenths / 36000
	m := (tenths / 600) % 60
	s := (tenths / 10) % 60
	return fmt.Sprintf("%d:%02d:%02d.%d", h, m, s, tenths%10)
}
