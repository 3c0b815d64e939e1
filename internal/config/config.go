package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
}

// Transcription contains settings for the remote speech-recognition service.
type Transcription struct {
	APIKey                string `toml:"api_key"`
	BaseURL               string `toml:"base_url"`
	Model                 string `toml:"model"`
	Language              string `toml:"language"`
	Prompt                string `toml:"prompt"`
	GenerateCues          bool   `toml:"generate_cues"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxRetries            int    `toml:"max_retries"`
	RetryMaxDelaySeconds  int    `toml:"retry_max_delay_seconds"`
}

// Segmenter contains settings for splitting media into request-sized segments.
type Segmenter struct {
	// ByteLimit is the largest payload the remote service accepts per request.
	ByteLimit int64 `toml:"byte_limit"`
	// SplitThreshold is the fraction of ByteLimit above which a file is split.
	SplitThreshold float64 `toml:"split_threshold"`
	// SafetyRatio is the fraction of ByteLimit each planned segment targets.
	SafetyRatio float64 `toml:"safety_ratio"`
	// Optimize re-encodes the source to mono 16kHz Ogg Vorbis before planning.
	Optimize     bool   `toml:"optimize"`
	AudioBitrate string `toml:"audio_bitrate"`
	// SilenceDetection moves cut points onto nearby silence when enabled.
	SilenceDetection   bool    `toml:"silence_detection"`
	SilenceNoiseDB     float64 `toml:"silence_noise_db"`
	SilenceMinSeconds  float64 `toml:"silence_min_seconds"`
	SearchWindowSecond float64 `toml:"search_window_seconds"`
	MinSegmentSeconds  float64 `toml:"min_segment_seconds"`
}

// Pipeline contains orchestration settings.
type Pipeline struct {
	MaxConcurrency int  `toml:"max_concurrency"`
	EventBuffer    int  `toml:"event_buffer"`
	History        bool `toml:"history"`
}

// API contains settings for the local HTTP API.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for chunkscribe.
//
// Configuration sections by subsystem:
//   - Paths: work, output, state, and log directories
//   - Transcription: remote service credentials, model, and retry budget
//   - Segmenter: byte limit, safety margins, and cut-point detection
//   - Pipeline: worker concurrency and run history
//   - API: local HTTP API bind address and token
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Segmenter     Segmenter     `toml:"segmenter"`
	Pipeline      Pipeline      `toml:"pipeline"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chunkscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a pipeline run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if err := os.MkdirAll(c.Paths.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory %q: %w", c.Paths.OutputDir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for re-encoding.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// HistoryPath returns the SQLite database path for run history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// RequestTimeout returns the per-call timeout for the remote service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Transcription.RequestTimeoutSeconds) * time.Second
}

// RetryMaxDelay returns the cap applied to exponential retry backoff.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Transcription.RetryMaxDelaySeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "chunkscribe", "work")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/chunkscribe/work"
	}
	return filepath.Join(home, ".cache", "chunkscribe", "work")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML, with secrets masked.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	clone.Transcription.APIKey = maskSecret(clone.Transcription.APIKey)
	clone.API.Token = maskSecret(clone.API.Token)
	return toml.Marshal(clone)
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
