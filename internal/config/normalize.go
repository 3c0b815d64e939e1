package config

import (
	"fmt"
	"os"
	"strings"

	"chunkscribe/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeSegmenter()
	c.normalizePipeline()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		for _, name := range []string{"CHUNKSCRIBE_API_KEY", "OPENAI_API_KEY"} {
			if value := strings.TrimSpace(os.Getenv(name)); value != "" {
				c.Transcription.APIKey = value
				break
			}
		}
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if language.IsAuto(c.Transcription.Language) {
		c.Transcription.Language = language.Auto
	} else if code, err := language.Normalize(c.Transcription.Language); err == nil {
		c.Transcription.Language = code
	}
	c.Transcription.Prompt = strings.TrimSpace(c.Transcription.Prompt)
	if c.Transcription.RequestTimeoutSeconds <= 0 {
		c.Transcription.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Transcription.MaxRetries < 0 {
		c.Transcription.MaxRetries = 0
	}
	if c.Transcription.RetryMaxDelaySeconds <= 0 {
		c.Transcription.RetryMaxDelaySeconds = defaultRetryMaxDelaySeconds
	}
}

func (c *Config) normalizeSegmenter() {
	if c.Segmenter.ByteLimit <= 0 {
		c.Segmenter.ByteLimit = defaultByteLimit
	}
	if c.Segmenter.SplitThreshold <= 0 {
		c.Segmenter.SplitThreshold = defaultSplitThreshold
	}
	if c.Segmenter.SafetyRatio <= 0 {
		c.Segmenter.SafetyRatio = defaultSafetyRatio
	}
	c.Segmenter.AudioBitrate = strings.ToLower(strings.TrimSpace(c.Segmenter.AudioBitrate))
	if c.Segmenter.AudioBitrate == "" {
		c.Segmenter.AudioBitrate = defaultAudioBitrate
	}
	if c.Segmenter.SilenceNoiseDB == 0 {
		c.Segmenter.SilenceNoiseDB = defaultSilenceNoiseDB
	}
	if c.Segmenter.SilenceMinSeconds <= 0 {
		c.Segmenter.SilenceMinSeconds = defaultSilenceMinSeconds
	}
	if c.Segmenter.SearchWindowSecond < 0 {
		c.Segmenter.SearchWindowSecond = 0
	}
	if c.Segmenter.MinSegmentSeconds <= 0 {
		c.Segmenter.MinSegmentSeconds = defaultMinSegmentSeconds
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxConcurrency <= 0 {
		c.Pipeline.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Pipeline.EventBuffer <= 0 {
		c.Pipeline.EventBuffer = defaultEventBuffer
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = strings.TrimSpace(os.Getenv("CHUNKSCRIBE_API_TOKEN"))
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
