package media

import (
	"context"
	"path/filepath"

	"chunkscribe/internal/logging"
)

// OptimizedName is the file name of the speech-optimized intermediate.
const OptimizedName = "source" + SpeechExtension

// Optimize re-encodes file into a mono 16 kHz Vorbis intermediate inside
// workDir and returns the probed result. The caller owns the new file.
func Optimize(ctx context.Context, enc *Encoder, prober *Prober, file File, workDir string) (File, error) {
	dest := filepath.Join(workDir, OptimizedName)
	if err := enc.EncodeFile(ctx, file.Path, dest); err != nil {
		return File{}, err
	}
	optimized, err := prober.Probe(ctx, dest)
	if err != nil {
		return File{}, err
	}
	prober.logger.Info("audio optimized for speech",
		logging.Int64("source_bytes", file.SizeBytes),
		logging.Int64("optimized_bytes", optimized.SizeBytes),
		logging.Float64("duration_seconds", optimized.DurationSeconds),
	)
	return optimized, nil
}
